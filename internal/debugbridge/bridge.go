// Package debugbridge collects console and network events from the companion
// browser extension so they can be inspected while developing the widget.
package debugbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultCapacity = 1000
	defaultLimit    = 100
	maxBodyBytes    = 1 << 20
)

const (
	EventConsole = "console"
	EventNetwork = "network"
)

type Event struct {
	Type      string    `json:"type"`
	Level     string    `json:"level,omitempty"`
	Message   string    `json:"message,omitempty"`
	URL       string    `json:"url,omitempty"`
	Method    string    `json:"method,omitempty"`
	Status    int       `json:"status,omitempty"`
	TabID     int       `json:"tab_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Event) validate(now time.Time) error {
	switch e.Type {
	case EventConsole:
		if e.Level == "" {
			e.Level = "log"
		}
	case EventNetwork:
		if e.URL == "" {
			return errors.New("network events need a url")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return nil
}

// reply is what the bridge writes back on the socket.
type reply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type Bridge struct {
	buf      *Buffer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func New(capacity int, logger *zap.Logger) *Bridge {
	return &Bridge{
		buf:    NewBuffer(capacity),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the extension connects from a chrome-extension:// origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (b *Bridge) Buffer() *Buffer { return b.buf }

func (b *Bridge) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/ws", b.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/debug/events", b.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/debug/events", b.handleList).Methods(http.MethodGet)
	r.HandleFunc("/debug/events", b.handleClear).Methods(http.MethodDelete)
	return r
}

// Serve runs the bridge on addr until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("debug bridge listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		b.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("extension connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		out := reply{Type: "ack"}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			out = reply{Type: "error", Message: "invalid JSON"}
		} else if err := e.validate(b.now()); err != nil {
			out = reply{Type: "error", Message: err.Error()}
		} else {
			b.buf.Add(e)
		}
		if err := conn.WriteJSON(out); err != nil {
			b.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (b *Bridge) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		b.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var events []Event
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &events)
	} else {
		var e Event
		err = json.Unmarshal(trimmed, &e)
		events = []Event{e}
	}
	if err != nil {
		b.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	now := b.now()
	for i := range events {
		if err := events[i].validate(now); err != nil {
			b.writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
	}
	b.buf.Add(events...)
	b.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(events)})
}

func (b *Bridge) handleList(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	if typ != "" && typ != EventConsole && typ != EventNetwork {
		b.writeError(w, http.StatusBadRequest, "type must be console or network")
		return
	}
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			b.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	b.writeJSON(w, http.StatusOK, map[string]interface{}{"events": b.buf.List(typ, limit)})
}

func (b *Bridge) handleClear(w http.ResponseWriter, r *http.Request) {
	b.buf.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bridge) closeClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
}

func (b *Bridge) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Debug("Failed to write response", zap.Int("status", status), zap.Error(err))
	}
}

func (b *Bridge) writeError(w http.ResponseWriter, status int, msg string) {
	b.writeJSON(w, status, map[string]string{"error": msg})
}
