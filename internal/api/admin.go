package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

const maxHistoryPage = 500

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, int(^uint(0)>>1))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	activity, err := h.db.ListActivity(r.Context(), limit, offset)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"activity": activity})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.LeadStats(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) SessionMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", maxPageSize, 1, maxHistoryPage)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	messages, err := h.db.GetSessionHistory(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
