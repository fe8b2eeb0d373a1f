package debugbridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(Event{Type: EventConsole, Status: i})
	}
	assert.Equal(t, 3, b.Len())

	got := b.List("", 0)
	require.Len(t, got, 3)
	assert.Equal(t, []int{3, 4, 5}, statuses(got))
}

func TestBufferListFiltersAndLimits(t *testing.T) {
	b := NewBuffer(10)
	b.Add(
		Event{Type: EventConsole, Status: 1},
		Event{Type: EventNetwork, Status: 2},
		Event{Type: EventConsole, Status: 3},
		Event{Type: EventNetwork, Status: 4},
		Event{Type: EventConsole, Status: 5},
	)

	assert.Equal(t, []int{1, 3, 5}, statuses(b.List(EventConsole, 0)))
	assert.Equal(t, []int{3, 5}, statuses(b.List(EventConsole, 2)))
	assert.Equal(t, []int{4, 5}, statuses(b.List("", 2)))

	b.Clear()
	assert.Empty(t, b.List("", 0))
	assert.Equal(t, 0, b.Len())
}

func statuses(events []Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func newTestBridge(t *testing.T) (*Bridge, *httptest.Server) {
	t.Helper()
	b := New(5, zap.NewNop())
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func TestIngestOverHTTP(t *testing.T) {
	b, srv := newTestBridge(t)

	resp, err := http.Post(srv.URL+"/debug/events", "application/json",
		strings.NewReader(`{"type":"console","message":"hello"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/debug/events", "application/json",
		strings.NewReader(`[{"type":"network","url":"https://x.example","method":"GET","status":500},{"type":"console","level":"error","message":"boom"}]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	events := b.Buffer().List("", 0)
	require.Len(t, events, 3)
	assert.Equal(t, "log", events[0].Level)
	assert.Equal(t, b.now(), events[0].Timestamp)
	assert.Equal(t, 500, events[1].Status)
}

func TestIngestRejectsInvalid(t *testing.T) {
	b, srv := newTestBridge(t)

	for _, body := range []string{
		`not json`,
		`{"type":"mouse"}`,
		`[{"type":"console"},{"type":"network"}]`,
	} {
		resp, err := http.Post(srv.URL+"/debug/events", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Equal(t, 0, b.Buffer().Len(), "a bad batch stores nothing")
}

func TestListAndClear(t *testing.T) {
	b, srv := newTestBridge(t)
	b.Buffer().Add(Event{Type: EventConsole, Message: "a"}, Event{Type: EventNetwork, URL: "u"})

	resp, err := http.Get(srv.URL + "/debug/events?type=network")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "u", body.Events[0].URL)

	for _, q := range []string{"?type=dom", "?limit=0", "?limit=x"} {
		r, err := http.Get(srv.URL + "/debug/events" + q)
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusBadRequest, r.StatusCode, q)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/debug/events", nil)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusNoContent, r.StatusCode)
	assert.Equal(t, 0, b.Buffer().Len())
}

func TestWebSocketIngest(t *testing.T) {
	b, srv := newTestBridge(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/debug/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(frame string) reply {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		var r reply
		require.NoError(t, conn.ReadJSON(&r))
		return r
	}

	assert.Equal(t, "ack", send(`{"type":"console","message":"loaded","tab_id":7}`).Type)
	assert.Equal(t, "error", send(`{broken`).Type)
	assert.Equal(t, "error", send(`{"type":"keyboard"}`).Type)
	assert.Equal(t, "ack", send(`{"type":"network","url":"https://api.example/chat","status":200}`).Type)

	events := b.Buffer().List("", 0)
	require.Len(t, events, 2)
	assert.Equal(t, 7, events[0].TabID)
	assert.Equal(t, EventNetwork, events[1].Type)
}

type hungUpWriter struct{ header http.Header }

func (w *hungUpWriter) Header() http.Header { return w.header }
func (w *hungUpWriter) WriteHeader(int) {}
func (w *hungUpWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSONLogsFailedWrite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := New(10, zap.New(core))

	b.writeJSON(&hungUpWriter{header: http.Header{}}, http.StatusAccepted, map[string]int{"accepted": 1})

	entries := logs.FilterMessage("Failed to write response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}
