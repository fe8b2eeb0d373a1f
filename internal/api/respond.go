package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/models"
	"github.com/RichardoC/leadline/internal/research"
)

const maxRequestBodySize = 1 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", zap.Int("status", status), zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeValidation(w http.ResponseWriter, verrs models.ValidationErrors) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: verrs.Fields()})
}

// writeDomainError maps service and store errors onto status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		h.writeValidation(w, verrs)
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, research.ErrDisabled):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// readJSON decodes the body into dst, rejecting unknown fields and bodies
// over 1 MiB. It writes the error response itself and reports success.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON body")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		h.writeError(w, http.StatusBadRequest, "request body is empty")
	default:
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return false
}

// queryInt parses an optional integer query parameter within [min, max].
// Values above max are clamped; anything else out of range is an error.
func queryInt(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return 0, models.Invalid(name, "must be an integer of at least "+strconv.Itoa(min))
	}
	if n > max {
		n = max
	}
	return n, nil
}
