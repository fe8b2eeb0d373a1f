package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RichardoC/leadline/internal/cache"
	"github.com/RichardoC/leadline/internal/config"
	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/llm"
	"github.com/RichardoC/leadline/internal/mail"
	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/research"
	"github.com/RichardoC/leadline/internal/session"
)

const adminToken = "s3cret-admin"

var testNow = time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)

// echoModel streams a fixed reply word by word.
type echoModel struct {
	reply string
}

func (m *echoModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		for i, word := range strings.Fields(m.reply) {
			if i > 0 {
				word = " " + word
			}
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type staticGrounder struct{}

func (staticGrounder) Ground(context.Context, string) (*research.Result, error) {
	return &research.Result{
		Text:    "Acme is a logistics company.",
		Sources: []research.Source{{Title: "Acme", URI: "https://acme.example"}},
		Queries: []string{"acme logistics"},
	}, nil
}

type testServer struct {
	handler http.Handler
	h       *Handler
	db      *db.Database
	outbox  *outbox
}

type serverOption func(*Options)

func withAdminToken(token string) serverOption {
	return func(o *Options) { o.AdminToken = token }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return testNow.Add(-time.Hour + time.Duration(tick)*time.Second)
	}
	database, err := db.Open("sqlite3", ":memory:", db.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(context.Background()))

	logger := zap.NewNop()
	cfg := config.Defaults()
	cfg.LLM.RateLimitBurst = 1000
	cfg.LLM.RateLimitPerMin = 60000
	box := &outbox{}

	o := Options{
		DB:            database,
		Sessions:      session.NewService(database, cache.Nop(), time.Hour, logger),
		LLM:           llm.NewWithModel(&echoModel{reply: "Happy to help with your automation roadmap."}, cfg.LLM, database, logger),
		Research:      research.NewWithGrounder(nil, database, logger),
		Notifier:      mail.NewNotifier(box, "sales@studio.example", logger),
		Logger:        logger,
		AdminToken:    adminToken,
		AllowedOrigin: "https://studio.example",
	}
	for _, opt := range opts {
		opt(&o)
	}
	h := NewHandler(o)
	h.now = func() time.Time { return testNow }
	return &testServer{handler: h.Router(), h: h, db: database, outbox: box}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, "Authorization", "Bearer "+adminToken)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/nope", "").Code)

	rec := s.do(t, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"method not allowed"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodOptions, "/api/chat", "", "Origin", "https://studio.example", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://studio.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "https://studio.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/chat", `{"message":"I'm the CEO at Acme and we need an automation roadmap"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatResponse
	decode(t, rec, &resp)
	assert.True(t, session.ValidID(resp.SessionID))
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, "Happy to help with your automation roadmap.", resp.Reply)
	assert.Equal(t, "consulting", string(resp.Intent.Type))
	require.NotNil(t, resp.Role)
	assert.Equal(t, "executive", string(resp.Role.Category))
	assert.Equal(t, "consulting", resp.Context.Intent)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, "roi_calculator", resp.Suggestions[0].Name)

	// a vague follow-up keeps the known intent
	rec = s.do(t, http.MethodPost, "/api/chat", `{"session_id":"`+resp.SessionID+`","message":"ok thanks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second ChatResponse
	decode(t, rec, &second)
	assert.Equal(t, resp.SessionID, second.SessionID)
	assert.Equal(t, "consulting", second.Context.Intent)
	assert.Nil(t, second.Role)

	history, err := s.db.GetSessionHistory(context.Background(), resp.SessionID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]struct {
		body  string
		code  int
		field string
	}{
		"empty message":   {`{"message":"   "}`, http.StatusBadRequest, "message"},
		"too long":        {`{"message":"` + strings.Repeat("a", 4001) + `"}`, http.StatusBadRequest, "message"},
		"bad session id":  {`{"session_id":"abc","message":"hi"}`, http.StatusBadRequest, "session_id"},
		"unknown field":   {`{"message":"hi","extra":1}`, http.StatusBadRequest, ""},
		"malformed json":  {`{"message":`, http.StatusBadRequest, ""},
		"trailing values": {`{"message":"hi"} {"message":"again"}`, http.StatusBadRequest, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/chat", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			var body errorResponse
			decode(t, rec, &body)
			assert.NotEmpty(t, body.Error)
			if tc.field != "" {
				assert.Contains(t, body.Fields, tc.field)
			}
		})
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	big := `{"message":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := s.do(t, http.MethodPost, "/api/chat", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/chat", `{"message":"Do you run a workshop for beginners?","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var tokens []string
	var done map[string]interface{}
	for _, frame := range strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n") {
		require.True(t, strings.HasPrefix(frame, "data: "), frame)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		if tok, ok := ev["token"].(string); ok {
			tokens = append(tokens, tok)
			continue
		}
		done = ev
	}

	assert.Equal(t, "Happy to help with your automation roadmap.", strings.Join(tokens, ""))
	require.NotNil(t, done)
	assert.Equal(t, true, done["done"])
	assert.Equal(t, "Happy to help with your automation roadmap.", done["reply"])
	assert.NotEmpty(t, done["session_id"])
	assert.Equal(t, "workshop", done["intent"].(map[string]interface{})["type"])
}

func chatSession(t *testing.T, s *testServer, message string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/chat", `{"message":"`+message+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	decode(t, rec, &resp)
	return resp.SessionID
}

func TestCaptureLead(t *testing.T) {
	s := newTestServer(t)
	sid := chatSession(t, s, "I'm the CEO and we want to automate our invoicing")

	rec := s.do(t, http.MethodPost, "/api/leads",
		`{"name":" Ada Lovelace ","email":"Ada@Acme.example","company":"Acme","session_id":"`+sid+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var lead models.Lead
	decode(t, rec, &lead)
	assert.Equal(t, "Ada Lovelace", lead.Name)
	assert.Equal(t, "ada@acme.example", lead.Email)
	assert.Equal(t, "consulting", lead.Intent)
	assert.Equal(t, "ceo", lead.Role)
	// business email 20 + company 15 + executive 25 + consulting 20
	assert.Equal(t, 80, lead.Score)
	assert.Equal(t, "Happy to help with your automation roadmap.", lead.ConversationSummary)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Equal(t, "chat", lead.Source)

	rec = s.do(t, http.MethodGet, "/api/intelligence/context/"+sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv models.ConversationContext
	decode(t, rec, &conv)
	assert.Equal(t, lead.ID, conv.LeadID)

	assert.Equal(t, 2, s.outbox.count(), "confirmation and admin notification")

	activity, err := s.db.ListActivity(context.Background(), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, activity)
	assert.Equal(t, models.ActivityLeadCreated, activity[0].Kind)

	rec = s.do(t, http.MethodPost, "/api/leads", `{"name":"Ada again","email":"ada@acme.example"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCaptureLeadWithoutSession(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/leads",
		`{"name":"Bo","email":"bo@gmail.com","message":"Looking for a workshop for my team"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var lead models.Lead
	decode(t, rec, &lead)
	assert.Equal(t, "workshop", lead.Intent)
	assert.Equal(t, 15, lead.Score)
	assert.Equal(t, "Looking for a workshop for my team", lead.ConversationSummary)
}

func TestCaptureLeadValidation(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/leads", `{"name":"","email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	decode(t, rec, &body)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "email")
	assert.Equal(t, 0, s.outbox.count())
}

func TestIntelligenceEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/intelligence/intent", `{"text":"We want a hands-on training course"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"workshop"`)

	rec = s.do(t, http.MethodPost, "/api/intelligence/role", `{"text":"I work as a data scientist at Initech"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"practitioner"`)

	rec = s.do(t, http.MethodPost, "/api/intelligence/intent", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/intelligence/suggest-tools", `{"intent":"consulting","used":["ROI_Calculator"],"limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var sug struct {
		Suggestions []struct {
			Name string `json:"name"`
		} `json:"suggestions"`
	}
	decode(t, rec, &sug)
	require.Len(t, sug.Suggestions, 2)
	assert.Equal(t, "meeting_booking", sug.Suggestions[0].Name)
	assert.Equal(t, "document_analysis", sug.Suggestions[1].Name)

	rec = s.do(t, http.MethodPost, "/api/intelligence/suggest-tools", `{"limit":11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordCapability(t *testing.T) {
	s := newTestServer(t)
	sid := session.NewID()

	var first, second CapabilityResponse
	rec := s.do(t, http.MethodPost, "/api/intelligence/capabilities", `{"session_id":"`+sid+`","capability":"voice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &first)
	assert.True(t, first.Recorded)
	assert.Equal(t, models.StringList{"voice"}, first.Context.CapabilitiesUsed)

	rec = s.do(t, http.MethodPost, "/api/intelligence/capabilities", `{"session_id":"`+sid+`","capability":"Voice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &second)
	assert.False(t, second.Recorded)

	rec = s.do(t, http.MethodPost, "/api/intelligence/capabilities", `{"session_id":"`+sid+`","capability":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// used capabilities drop out of the session's suggestions
	rec = s.do(t, http.MethodPost, "/api/intelligence/suggest-tools", `{"session_id":"`+sid+`","limit":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"name":"voice"`)

	rec = s.do(t, http.MethodGet, "/api/intelligence/context/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeetings(t *testing.T) {
	s := newTestServer(t)
	start := testNow.Add(48 * time.Hour).Format(time.RFC3339)

	rec := s.do(t, http.MethodPost, "/api/meetings",
		`{"email":"ada@acme.example","name":"Ada","topic":"Roadmap","starts_at":"`+start+`","duration_minutes":45,"timezone":"Europe/London"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m models.Meeting
	decode(t, rec, &m)
	assert.Equal(t, models.MeetingScheduled, m.Status)
	assert.Equal(t, 45, m.DurationMinutes)
	assert.Equal(t, 1, s.outbox.count())

	overlap := testNow.Add(48*time.Hour + 30*time.Minute).Format(time.RFC3339)
	rec = s.do(t, http.MethodPost, "/api/meetings", `{"email":"bo@x.example","starts_at":"`+overlap+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	past := testNow.Add(-time.Hour).Format(time.RFC3339)
	rec = s.do(t, http.MethodPost, "/api/meetings", `{"email":"bo@x.example","starts_at":"`+past+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/meetings/"+m.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/meetings/"+m.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
	assert.Equal(t, 2, s.outbox.count())

	rec = s.do(t, http.MethodPost, "/api/meetings/"+m.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, s.outbox.count(), "cancelling twice sends one mail")

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/meetings/missing", "").Code)

	rec = s.admin(t, http.MethodGet, "/api/admin/meetings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"meetings":[]}`, rec.Body.String())

	rec = s.admin(t, http.MethodGet, "/api/admin/meetings?include_cancelled=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), m.ID)
}

func TestMeetingLinksLead(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/leads", `{"name":"Ada","email":"ada@acme.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var lead models.Lead
	decode(t, rec, &lead)

	start := testNow.Add(24 * time.Hour).Format(time.RFC3339)
	rec = s.do(t, http.MethodPost, "/api/meetings", `{"email":"ADA@acme.example","starts_at":"`+start+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var m models.Meeting
	decode(t, rec, &m)
	assert.Equal(t, lead.ID, m.LeadID)
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/admin/leads", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.do(t, http.MethodGet, "/api/admin/leads", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.do(t, http.MethodGet, "/api/admin/leads", "", "Authorization", adminToken).Code)
	assert.Equal(t, http.StatusOK,
		s.do(t, http.MethodGet, "/api/admin/leads", "", "Authorization", "bearer "+adminToken).Code)

	open := newTestServer(t, withAdminToken(""))
	assert.Equal(t, http.StatusUnauthorized,
		open.do(t, http.MethodGet, "/api/admin/stats", "", "Authorization", "Bearer ").Code)
}

func seedLeads(t *testing.T, s *testServer) []models.Lead {
	t.Helper()
	var out []models.Lead
	for _, body := range []string{
		`{"name":"Ada","email":"ada@acme.example","company":"Acme","message":"automation audit"}`,
		`{"name":"Bo","email":"bo@gmail.com","message":"a workshop please"}`,
		`{"name":"Cy","email":"cy@initech.example","company":"Initech"}`,
	} {
		rec := s.do(t, http.MethodPost, "/api/leads", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var l models.Lead
		decode(t, rec, &l)
		out = append(out, l)
	}
	return out
}

func TestAdminLeads(t *testing.T) {
	s := newTestServer(t)
	leads := seedLeads(t, s)

	rec := s.admin(t, http.MethodGet, "/api/admin/leads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list LeadListResponse
	decode(t, rec, &list)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Leads, 3)
	assert.Equal(t, "Cy", list.Leads[0].Name, "newest first")

	rec = s.admin(t, http.MethodGet, "/api/admin/leads?q=acme&min_score=20&limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = s.admin(t, http.MethodGet, "/api/admin/leads?status=won&limit=-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var verr errorResponse
	decode(t, rec, &verr)
	assert.Contains(t, verr.Fields, "status")
	assert.Contains(t, verr.Fields, "limit")

	rec = s.admin(t, http.MethodPatch, "/api/admin/leads/"+leads[1].ID, `{"status":"qualified","score":90}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Lead
	decode(t, rec, &updated)
	assert.Equal(t, "qualified", updated.Status)
	assert.Equal(t, 90, updated.Score)

	assert.Equal(t, http.StatusBadRequest, s.admin(t, http.MethodPatch, "/api/admin/leads/"+leads[1].ID, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.admin(t, http.MethodPatch, "/api/admin/leads/"+leads[1].ID, `{"status":"won"}`).Code)
	assert.Equal(t, http.StatusNotFound, s.admin(t, http.MethodPatch, "/api/admin/leads/missing", `{"status":"closed"}`).Code)

	rec = s.admin(t, http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.LeadStats
	decode(t, rec, &stats)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["qualified"])

	assert.Equal(t, http.StatusNoContent, s.admin(t, http.MethodDelete, "/api/admin/leads/"+leads[0].ID, "").Code)
	assert.Equal(t, http.StatusNotFound, s.admin(t, http.MethodDelete, "/api/admin/leads/"+leads[0].ID, "").Code)
	assert.Equal(t, http.StatusNotFound, s.admin(t, http.MethodGet, "/api/admin/leads/"+leads[0].ID, "").Code)

	rec = s.admin(t, http.MethodGet, "/api/admin/activity?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var act struct {
		Activity []models.Activity `json:"activity"`
	}
	decode(t, rec, &act)
	require.Len(t, act.Activity, 2)
	assert.Equal(t, models.ActivityLeadDeleted, act.Activity[0].Kind)
	assert.Equal(t, models.ActivityLeadUpdated, act.Activity[1].Kind)
}

func TestExportLeads(t *testing.T) {
	s := newTestServer(t)
	seedLeads(t, s)

	rec := s.admin(t, http.MethodGet, "/api/admin/leads/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "leads-20300107.csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "Cy", rows[1][1])

	rec = s.admin(t, http.MethodGet, "/api/admin/leads/export?q=gmail", "")
	rows, err = csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bo@gmail.com", rows[1][2])
}

func TestSessionMessages(t *testing.T) {
	s := newTestServer(t)
	sid := chatSession(t, s, "hello there")

	rec := s.admin(t, http.MethodGet, "/api/admin/sessions/"+sid+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, models.RoleUser, body.Messages[0].Role)
	assert.Equal(t, "hello there", body.Messages[0].Content)
}

func TestResearchLead(t *testing.T) {
	s := newTestServer(t)
	leads := seedLeads(t, s)

	rec := s.admin(t, http.MethodPost, "/api/admin/leads/"+leads[0].ID+"/research", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	enabled := newTestServer(t)
	enabled.h.research = research.NewWithGrounder(staticGrounder{}, enabled.db, zap.NewNop())
	lead := seedLeads(t, enabled)[0]

	rec = enabled.admin(t, http.MethodPost, "/api/admin/leads/"+lead.ID+"/research", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Brief research.Brief `json:"brief"`
		Lead  models.Lead    `json:"lead"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Brief.Sources, 1, "duplicate sources across prompts collapse")
	assert.Contains(t, body.Lead.ResearchSummary, "Acme is a logistics company.")

	assert.Equal(t, http.StatusNotFound,
		enabled.admin(t, http.MethodPost, "/api/admin/leads/missing/research", "").Code)
}

// brokenWriter fails every body write, like a client that hung up.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(status int) { w.status = status }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteJSONLogsFailedWrite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &Handler{logger: zap.New(core)}
	w := &brokenWriter{header: http.Header{}}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.status)
	entries := logs.FilterMessage("Failed to write response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
}
