package api

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/session"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type LeadListResponse struct {
	Leads []models.Lead `json:"leads"`
	Total int           `json:"total"`
}

// CaptureLead stores the visitor's contact details, scored with everything
// the session has learned about them.
func (h *Handler) CaptureLead(w http.ResponseWriter, r *http.Request) {
	var in models.LeadInput
	if !h.readJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if in.SessionID != "" && !session.ValidID(in.SessionID) {
		h.writeValidation(w, models.ValidationErrors{{Field: "session_id", Message: "must be a UUID"}})
		return
	}

	ctx := r.Context()
	conv := &models.ConversationContext{CapabilitiesUsed: models.StringList{}}
	if in.SessionID != "" {
		var err error
		if conv, err = h.sessions.Get(ctx, in.SessionID); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	intent := intelligence.ParseIntentType(conv.Intent)
	if intent == intelligence.IntentOther {
		intent = intelligence.DetectIntent(in.Message).Type
	}
	roleTitle, roleCategory := conv.Role, intelligence.RoleCategory(conv.RoleCategory)
	if roleTitle == "" {
		if role := intelligence.DetectRole(in.Message); !role.Empty() {
			roleTitle, roleCategory = role.Title, role.Category
		}
	}

	lead := &models.Lead{
		Name:      in.Name,
		Email:     in.Email,
		Company:   in.Company,
		Role:      roleTitle,
		Intent:    string(intent),
		Source:    in.Source,
		SessionID: in.SessionID,
		Score: intelligence.ScoreLead(intelligence.LeadSignals{
			Email:            in.Email,
			Company:          in.Company,
			RoleCategory:     roleCategory,
			Intent:           intent,
			CapabilitiesUsed: conv.CapabilitiesUsed,
		}),
		ConversationSummary: h.summarize(ctx, in.SessionID, in.Message),
	}

	if err := h.db.CreateLead(ctx, lead); err != nil {
		if errors.Is(err, db.ErrConflict) {
			h.writeError(w, http.StatusConflict, "a lead with this email already exists")
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	if in.SessionID != "" {
		if err := h.sessions.AttachLead(ctx, in.SessionID, lead.ID); err != nil {
			h.logger.Warn("Failed to attach lead to session", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}
	h.logActivity(ctx, models.ActivityLeadCreated, lead.ID, lead.Email)
	h.notifier.LeadCaptured(ctx, lead)

	h.logger.Info("Lead captured",
		zap.String("lead_id", lead.ID),
		zap.String("intent", lead.Intent),
		zap.Int("score", lead.Score))
	h.writeJSON(w, http.StatusCreated, lead)
}

// summarize falls back to the visitor's own note when there is no
// transcript or the model is unavailable.
func (h *Handler) summarize(ctx context.Context, sessionID, note string) string {
	if sessionID == "" {
		return note
	}
	summary, err := h.llm.SummarizeSession(ctx, sessionID)
	if err != nil {
		h.logger.Warn("Failed to summarize conversation", zap.String("session_id", sessionID), zap.Error(err))
		return note
	}
	if summary == "" {
		return note
	}
	return summary
}

func (h *Handler) logActivity(ctx context.Context, kind models.ActivityKind, subjectID, detail string) {
	if err := h.db.LogActivity(ctx, kind, subjectID, detail); err != nil {
		h.logger.Warn("Failed to log activity", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func leadFilter(r *http.Request) (db.LeadFilter, error) {
	var verrs models.ValidationErrors
	q := r.URL.Query()
	f := db.LeadFilter{Query: strings.TrimSpace(q.Get("q")), Status: q.Get("status")}

	if f.Status != "" && !models.ValidLeadStatus(f.Status) {
		verrs = append(verrs, &models.ValidationError{Field: "status", Message: "must be one of new, contacted, qualified, closed"})
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			verrs = append(verrs, &models.ValidationError{Field: "min_score", Message: "must be between 0 and 100"})
		}
		f.MinScore = n
	}
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		verrs = append(verrs, err.(models.ValidationErrors)...)
	}
	offset, err := queryInt(r, "offset", 0, 0, int(^uint(0)>>1))
	if err != nil {
		verrs = append(verrs, err.(models.ValidationErrors)...)
	}
	f.Limit, f.Offset = limit, offset

	if len(verrs) > 0 {
		return f, verrs
	}
	return f, nil
}

func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	f, err := leadFilter(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	leads, total, err := h.db.ListLeads(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LeadListResponse{Leads: leads, Total: total})
}

func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.db.GetLead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var patch models.LeadPatch
	if !h.readJSON(w, r, &patch) {
		return
	}
	if patch.Empty() {
		h.writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if err := patch.Validate(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	lead, err := h.db.UpdateLead(r.Context(), mux.Vars(r)["id"], &patch)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logActivity(r.Context(), models.ActivityLeadUpdated, lead.ID, patchedFields(&patch))
	h.writeJSON(w, http.StatusOK, lead)
}

func patchedFields(p *models.LeadPatch) string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Company != nil {
		fields = append(fields, "company")
	}
	if p.Status != nil {
		fields = append(fields, "status="+*p.Status)
	}
	if p.Score != nil {
		fields = append(fields, "score="+strconv.Itoa(*p.Score))
	}
	if p.ConversationSummary != nil {
		fields = append(fields, "conversation_summary")
	}
	if p.ResearchSummary != nil {
		fields = append(fields, "research_summary")
	}
	return strings.Join(fields, ",")
}

func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.db.DeleteLead(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logActivity(r.Context(), models.ActivityLeadDeleted, id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResearchLead(w http.ResponseWriter, r *http.Request) {
	if !h.research.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable, "lead research is not configured")
		return
	}
	lead, err := h.db.GetLead(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	brief, updated, err := h.research.ResearchLead(r.Context(), lead)
	if err != nil {
		h.logger.Error("Lead research failed", zap.String("lead_id", lead.ID), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "research provider failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"brief": brief, "lead": updated})
}

var exportHeader = []string{
	"id", "name", "email", "company", "role", "intent", "score", "status", "source",
	"conversation_summary", "research_summary", "created_at", "updated_at",
}

// ExportLeads streams every lead matching the list filters as CSV.
func (h *Handler) ExportLeads(w http.ResponseWriter, r *http.Request) {
	f, err := leadFilter(r)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	f.Limit, f.Offset = maxPageSize, 0

	first, total, err := h.db.ListLeads(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	filename := fmt.Sprintf("leads-%s.csv", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	page := first
	for {
		for _, l := range page {
			cw.Write([]string{
				l.ID, l.Name, l.Email, l.Company, l.Role, l.Intent, strconv.Itoa(l.Score), l.Status, l.Source,
				l.ConversationSummary, l.ResearchSummary,
				l.CreatedAt.UTC().Format(time.RFC3339), l.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		f.Offset += len(page)
		if len(page) == 0 || f.Offset >= total {
			break
		}
		if page, _, err = h.db.ListLeads(r.Context(), f); err != nil {
			h.logger.Error("Lead export aborted", zap.Int("offset", f.Offset), zap.Error(err))
			break
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("Failed to write lead export", zap.Error(err))
	}
}
