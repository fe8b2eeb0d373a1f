package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/session"
)

const maxSuggestions = 10

type TextRequest struct {
	Text string `json:"text"`
}

type SuggestToolsRequest struct {
	SessionID string   `json:"session_id"`
	Intent    string   `json:"intent"`
	Used      []string `json:"used"`
	Limit     int      `json:"limit"`
}

type CapabilityRequest struct {
	SessionID  string `json:"session_id"`
	Capability string `json:"capability"`
}

type CapabilityResponse struct {
	Recorded bool                        `json:"recorded"`
	Context  *models.ConversationContext `json:"context"`
}

func (h *Handler) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TextRequest
	if !h.readJSON(w, r, &req) {
		return "", false
	}
	switch n := utf8.RuneCountInString(strings.TrimSpace(req.Text)); {
	case n == 0:
		h.writeValidation(w, models.ValidationErrors{{Field: "text", Message: "is required"}})
		return "", false
	case n > maxChatMessage:
		h.writeValidation(w, models.ValidationErrors{{Field: "text", Message: "must be at most 4000 characters"}})
		return "", false
	}
	return req.Text, true
}

func (h *Handler) DetectIntent(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, intelligence.DetectIntent(text))
}

func (h *Handler) DetectRole(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readText(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, intelligence.DetectRole(text))
}

// SuggestTools combines an explicit intent and used list with what the
// session already knows.
func (h *Handler) SuggestTools(w http.ResponseWriter, r *http.Request) {
	var req SuggestToolsRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if req.Limit < 0 || req.Limit > maxSuggestions {
		h.writeValidation(w, models.ValidationErrors{{Field: "limit", Message: "must be between 0 and 10"}})
		return
	}
	if req.SessionID != "" && !session.ValidID(req.SessionID) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}

	intent := req.Intent
	used := req.Used
	if req.SessionID != "" {
		conv, err := h.sessions.Get(r.Context(), req.SessionID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		if intent == "" {
			intent = conv.Intent
		}
		used = append(used, conv.CapabilitiesUsed...)
	}

	suggestions := intelligence.SuggestTools(intelligence.ParseIntentType(intent), used, req.Limit)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	if !session.ValidID(id) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}
	conv, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) RecordCapability(w http.ResponseWriter, r *http.Request) {
	var req CapabilityRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	if !session.ValidID(req.SessionID) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}
	recorded, conv, err := h.sessions.RecordCapability(r.Context(), req.SessionID, req.Capability)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CapabilityResponse{Recorded: recorded, Context: conv})
}
