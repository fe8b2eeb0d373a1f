package mail

import (
	"context"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/models"
)

const (
	leadConfirmationTemplate = `Hi {{.Name}},

Thanks for getting in touch. We have your details and someone from the team
will reply within one business day.
{{if .Company}}
We will come prepared with a few ideas for {{.Company}}.
{{end}}
Best regards`

	leadNotificationTemplate = `New lead captured.

Name:    {{.Name}}
Email:   {{.Email}}
Company: {{or .Company "-"}}
Role:    {{or .Role "-"}}
Intent:  {{.Intent}}
Score:   {{.Score}}
Source:  {{.Source}}
{{if .ConversationSummary}}
Conversation summary:
{{.ConversationSummary}}
{{end}}`

	meetingConfirmationTemplate = `Hi{{if .Name}} {{.Name}}{{end}},

Your call is booked for {{.Local}} ({{.Meeting.Timezone}}), {{.Meeting.DurationMinutes}} minutes.
{{if .Meeting.Topic}}Topic: {{.Meeting.Topic}}
{{end}}
Reference: {{.Meeting.ID}}`

	meetingCancellationTemplate = `Hi{{if .Name}} {{.Name}}{{end}},

Your call on {{.Local}} ({{.Meeting.Timezone}}) has been cancelled.

Reference: {{.Meeting.ID}}`
)

var templates = template.Must(template.New("mail").Parse(""))

func init() {
	template.Must(templates.New("lead_confirmation").Parse(leadConfirmationTemplate))
	template.Must(templates.New("lead_notification").Parse(leadNotificationTemplate))
	template.Must(templates.New("meeting_confirmation").Parse(meetingConfirmationTemplate))
	template.Must(templates.New("meeting_cancellation").Parse(meetingCancellationTemplate))
}

// Notifier renders and sends the emails. Failures are logged and dropped.
type Notifier struct {
	mailer     Mailer
	adminEmail string
	logger     *zap.Logger
}

func NewNotifier(m Mailer, adminEmail string, logger *zap.Logger) *Notifier {
	return &Notifier{mailer: m, adminEmail: adminEmail, logger: logger}
}

// LeadCaptured confirms to the lead and notifies the admin address.
func (n *Notifier) LeadCaptured(ctx context.Context, lead *models.Lead) {
	n.send(ctx, []string{lead.Email}, "Thanks for reaching out", "lead_confirmation", lead)
	if n.adminEmail != "" {
		n.send(ctx, []string{n.adminEmail}, "New lead: "+lead.Name, "lead_notification", lead)
	}
}

type meetingView struct {
	Meeting *models.Meeting
	Name    string
	Local   string
}

func newMeetingView(m *models.Meeting) meetingView {
	start := m.StartsAt
	if loc, err := time.LoadLocation(m.Timezone); err == nil {
		start = start.In(loc)
	}
	return meetingView{Meeting: m, Name: m.Name, Local: start.Format("Monday 2 January 2006 at 15:04")}
}

func (n *Notifier) MeetingBooked(ctx context.Context, m *models.Meeting) {
	n.send(ctx, n.withAdmin(m.Email), "Your call is booked", "meeting_confirmation", newMeetingView(m))
}

func (n *Notifier) MeetingCancelled(ctx context.Context, m *models.Meeting) {
	n.send(ctx, n.withAdmin(m.Email), "Your call has been cancelled", "meeting_cancellation", newMeetingView(m))
}

func (n *Notifier) withAdmin(to string) []string {
	if n.adminEmail == "" || strings.EqualFold(n.adminEmail, to) {
		return []string{to}
	}
	return []string{to, n.adminEmail}
}

func (n *Notifier) send(ctx context.Context, to []string, subject, tmpl string, data interface{}) {
	var body strings.Builder
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		n.logger.Error("failed to render mail", zap.String("template", tmpl), zap.Error(err))
		return
	}
	msg := Message{To: to, Subject: subject, Body: body.String()}
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.logger.Warn("failed to send mail",
			zap.String("template", tmpl),
			zap.Strings("to", to),
			zap.Error(err))
	}
}
