package models

import (
	"strings"
	"time"
)

const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusClosed    = "closed"
)

var leadStatuses = map[string]bool{
	LeadStatusNew:       true,
	LeadStatusContacted: true,
	LeadStatusQualified: true,
	LeadStatusClosed:    true,
}

// ValidLeadStatus reports whether s is one of the known lead statuses.
func ValidLeadStatus(s string) bool {
	return leadStatuses[s]
}

type Lead struct {
	ID                  string    `json:"id" db:"id"`
	Name                string    `json:"name" db:"name"`
	Email               string    `json:"email" db:"email"`
	Company             string    `json:"company" db:"company"`
	Role                string    `json:"role" db:"role"`
	Intent              string    `json:"intent" db:"intent"`
	Score               int       `json:"score" db:"score"`
	ConversationSummary string    `json:"conversation_summary" db:"conversation_summary"`
	ResearchSummary     string    `json:"research_summary" db:"research_summary"`
	Source              string    `json:"source" db:"source"`
	Status              string    `json:"status" db:"status"`
	SessionID           string    `json:"session_id,omitempty" db:"session_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// LeadInput is what the public capture form submits.
type LeadInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
}

// Validate trims the input in place and normalizes the email.
func (in *LeadInput) Validate() error {
	var errs ValidationErrors

	in.Name = strings.TrimSpace(in.Name)
	in.Company = strings.TrimSpace(in.Company)
	in.Message = strings.TrimSpace(in.Message)
	in.Source = strings.TrimSpace(in.Source)

	switch n := runeLen(in.Name); {
	case n == 0:
		errs.add("name", "is required")
	case n > 120:
		errs.add("name", "must be at most 120 characters")
	}

	email, ok := NormalizeEmail(in.Email)
	if !ok {
		errs.add("email", "must be a valid email address")
	}
	in.Email = email

	if runeLen(in.Company) > 200 {
		errs.add("company", "must be at most 200 characters")
	}
	if runeLen(in.Message) > 4000 {
		errs.add("message", "must be at most 4000 characters")
	}
	if in.Source == "" {
		in.Source = "chat"
	}
	return errs.err()
}

// LeadPatch carries the admin-editable fields; nil means unchanged.
type LeadPatch struct {
	Name                *string `json:"name,omitempty"`
	Company             *string `json:"company,omitempty"`
	Status              *string `json:"status,omitempty"`
	Score               *int    `json:"score,omitempty"`
	ConversationSummary *string `json:"conversation_summary,omitempty"`
	ResearchSummary     *string `json:"research_summary,omitempty"`
}

func (p *LeadPatch) Validate() error {
	var errs ValidationErrors
	if p.Name != nil && (strings.TrimSpace(*p.Name) == "" || runeLen(*p.Name) > 120) {
		errs.add("name", "must be 1 to 120 characters")
	}
	if p.Company != nil && runeLen(*p.Company) > 200 {
		errs.add("company", "must be at most 200 characters")
	}
	if p.Status != nil && !ValidLeadStatus(*p.Status) {
		errs.add("status", "must be one of new, contacted, qualified, closed")
	}
	if p.Score != nil && (*p.Score < 0 || *p.Score > 100) {
		errs.add("score", "must be between 0 and 100")
	}
	if p.ConversationSummary != nil && runeLen(*p.ConversationSummary) > 4000 {
		errs.add("conversation_summary", "must be at most 4000 characters")
	}
	return errs.err()
}

// Empty reports whether the patch changes nothing.
func (p *LeadPatch) Empty() bool {
	return p.Name == nil && p.Company == nil && p.Status == nil && p.Score == nil &&
		p.ConversationSummary == nil && p.ResearchSummary == nil
}

// Apply copies the set fields onto l.
func (p *LeadPatch) Apply(l *Lead) {
	if p.Name != nil {
		l.Name = strings.TrimSpace(*p.Name)
	}
	if p.Company != nil {
		l.Company = strings.TrimSpace(*p.Company)
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Score != nil {
		l.Score = *p.Score
	}
	if p.ConversationSummary != nil {
		l.ConversationSummary = *p.ConversationSummary
	}
	if p.ResearchSummary != nil {
		l.ResearchSummary = *p.ResearchSummary
	}
}

// LeadStats is the admin dashboard summary.
type LeadStats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	ByIntent     map[string]int `json:"by_intent"`
	AverageScore float64        `json:"average_score"`
}
