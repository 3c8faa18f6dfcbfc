package handler

import (
	"net/http"

	"github.com/marginkit/challenge-go/internal/middleware"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/service"
)

// CheckinHandler exposes the session's check-in reconciler.
type CheckinHandler struct {
	sessions *service.SessionManager
}

// NewCheckinHandler creates a new CheckinHandler.
func NewCheckinHandler(sessions *service.SessionManager) *CheckinHandler {
	return &CheckinHandler{sessions: sessions}
}

func (h *CheckinHandler) reconciler(w http.ResponseWriter, r *http.Request) (*service.Reconciler, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	sessionID, sok := middleware.SessionIDFromContext(r.Context())
	if !ok || !sok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return nil, false
	}

	rec, err := h.sessions.Current(userID, sessionID)
	if err != nil {
		writeError(w, r, err, nil)
		return nil, false
	}
	return rec, true
}

// HandleEnterDay handles GET /api/v1/checkins/{day} requests.
func (h *CheckinHandler) HandleEnterDay(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	view, err := rec.EnterDay(r.Context(), day)
	if err != nil {
		writeError(w, r, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleFieldChange handles PUT /api/v1/checkins/{day}/draft requests.
func (h *CheckinHandler) HandleFieldChange(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	var fields model.CheckinFields
	if !decodeJSON(w, r, &fields) {
		return
	}

	view, err := rec.FieldChange(r.Context(), day, fields)
	if err != nil {
		writeError(w, r, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSubmit handles POST /api/v1/checkins/{day} requests.
func (h *CheckinHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	view, err := rec.Submit(r.Context(), day)
	if err != nil {
		writeError(w, r, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
