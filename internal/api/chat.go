package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/llm"
	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/session"
)

const maxChatMessage = 4000

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

type ChatResponse struct {
	SessionID   string                      `json:"session_id"`
	MessageID   string                      `json:"message_id"`
	Reply       string                      `json:"reply"`
	Intent      intelligence.Intent         `json:"intent"`
	Role        *intelligence.Role          `json:"role,omitempty"`
	Context     *models.ConversationContext `json:"context"`
	Suggestions []intelligence.Capability   `json:"suggestions"`
}

type streamDone struct {
	Done bool `json:"done"`
	ChatResponse
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.readJSON(w, r, &req) {
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	switch n := utf8.RuneCountInString(req.Message); {
	case n == 0:
		h.writeValidation(w, models.ValidationErrors{{Field: "message", Message: "is required"}})
		return
	case n > maxChatMessage:
		h.writeValidation(w, models.ValidationErrors{{Field: "message", Message: fmt.Sprintf("must be at most %d characters", maxChatMessage)}})
		return
	}
	if req.SessionID == "" {
		req.SessionID = session.NewID()
	} else if !session.ValidID(req.SessionID) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}

	ctx := r.Context()
	intent := intelligence.DetectIntent(req.Message)
	role := intelligence.DetectRole(req.Message)

	conv, err := h.sessions.Observe(ctx, req.SessionID, intent, role)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	suggestions := intelligence.SuggestTools(intelligence.ParseIntentType(conv.Intent), conv.CapabilitiesUsed, 0)

	resp := ChatResponse{
		SessionID:   req.SessionID,
		Intent:      intent,
		Context:     conv,
		Suggestions: suggestions,
	}
	if !role.Empty() {
		resp.Role = &role
	}
	chatReq := llm.ChatRequest{
		SessionID:   req.SessionID,
		Message:     req.Message,
		Context:     conv,
		Suggestions: suggestions,
	}

	if flusher, ok := w.(http.Flusher); ok && req.Stream {
		h.streamChat(w, r, flusher, chatReq, resp)
		return
	}

	reply, err := h.llm.Chat(ctx, chatReq, nil)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp.MessageID = reply.ID
	resp.Reply = reply.Content
	h.writeJSON(w, http.StatusOK, resp)
}

// streamChat relays tokens as server-sent events and ends with a done frame
// carrying the same metadata as the JSON response.
func (h *Handler) streamChat(w http.ResponseWriter, r *http.Request, flusher http.Flusher, req llm.ChatRequest, resp ChatResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reply, err := h.llm.Chat(r.Context(), req, func(token string) error {
		return writeEvent(w, flusher, map[string]string{"token": token})
	})
	if err != nil {
		h.logger.Error("Failed to stream chat reply",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		writeEvent(w, flusher, map[string]string{"error": "failed to generate reply"})
		return
	}

	resp.MessageID = reply.ID
	resp.Reply = reply.Content
	if err := writeEvent(w, flusher, streamDone{Done: true, ChatResponse: resp}); err != nil {
		h.logger.Debug("Failed to write final chat event", zap.String("session_id", req.SessionID), zap.Error(err))
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
