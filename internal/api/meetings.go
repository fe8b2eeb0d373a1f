package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/session"
)

func (h *Handler) BookMeeting(w http.ResponseWriter, r *http.Request) {
	var in models.MeetingInput
	if !h.readJSON(w, r, &in) {
		return
	}
	if err := in.Validate(h.now()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if in.SessionID != "" && !session.ValidID(in.SessionID) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}

	ctx := r.Context()
	m := &models.Meeting{
		LeadID:          h.meetingLead(ctx, in),
		Email:           in.Email,
		Name:            in.Name,
		Topic:           in.Topic,
		StartsAt:        in.StartsAt,
		DurationMinutes: in.DurationMinutes,
		Timezone:        in.Timezone,
	}
	if err := h.db.CreateMeeting(ctx, m); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if in.SessionID != "" {
		if _, _, err := h.sessions.RecordCapability(ctx, in.SessionID, "meeting_booking"); err != nil {
			h.logger.Warn("Failed to record meeting capability", zap.String("session_id", in.SessionID), zap.Error(err))
		}
	}
	h.logActivity(ctx, models.ActivityMeetingBooked, m.ID, m.StartsAt.Format(time.RFC3339))
	h.notifier.MeetingBooked(ctx, m)

	h.writeJSON(w, http.StatusCreated, m)
}

// meetingLead finds the lead a booking belongs to, by session first and
// then by email.
func (h *Handler) meetingLead(ctx context.Context, in models.MeetingInput) string {
	if in.SessionID != "" {
		if conv, err := h.sessions.Get(ctx, in.SessionID); err == nil && conv.LeadID != "" {
			return conv.LeadID
		}
	}
	if lead, err := h.db.GetLeadByEmail(ctx, in.Email); err == nil {
		return lead.ID
	}
	return ""
}

func (h *Handler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := h.db.GetMeeting(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) CancelMeeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, changed, err := h.db.CancelMeeting(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if changed {
		h.logActivity(ctx, models.ActivityMeetingCancelled, m.ID, "")
		h.notifier.MeetingCancelled(ctx, m)
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeCancelled := false
	if v := q.Get("include_cancelled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeValidation(w, models.ValidationErrors{{Field: "include_cancelled", Message: "must be true or false"}})
			return
		}
		includeCancelled = b
	}
	from := h.now()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeValidation(w, models.ValidationErrors{{Field: "from", Message: "must be an RFC 3339 timestamp"}})
			return
		}
		from = t
	}

	meetings, err := h.db.ListMeetings(r.Context(), from, includeCancelled)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"meetings": meetings})
}
