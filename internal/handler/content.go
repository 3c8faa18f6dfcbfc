package handler

import (
	"net/http"

	"github.com/marginkit/challenge-go/internal/content"
	"github.com/marginkit/challenge-go/internal/middleware"
	"github.com/marginkit/challenge-go/internal/service"
)

// ContentHandler serves the day catalog.
type ContentHandler struct {
	catalog *content.Catalog
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(catalog *content.Catalog) *ContentHandler {
	return &ContentHandler{catalog: catalog}
}

// HandleListDays handles GET /api/v1/days requests.
func (h *ContentHandler) HandleListDays(w http.ResponseWriter, r *http.Request) {
	days, err := h.catalog.All(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// HandleGetDay handles GET /api/v1/days/{day} requests.
func (h *ContentHandler) HandleGetDay(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	d, err := h.catalog.Day(r.Context(), day)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ProgressHandler serves a participant's progress summary.
type ProgressHandler struct {
	service *service.ProgressService
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(svc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: svc}
}

// HandleProgress handles GET /api/v1/progress requests.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	p, err := h.service.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
