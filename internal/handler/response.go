package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marginkit/challenge-go/internal/content"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
	"github.com/marginkit/challenge-go/internal/service"
)

const maxBodySize = 1 << 20 // 1MB

type errorBody struct {
	Error          string        `json:"error"`
	Fields         []fieldError  `json:"fields,omitempty"`
	Reauthenticate bool          `json:"reauthenticate,omitempty"`
	Retryable      bool          `json:"retryable,omitempty"`
	View           *service.View `json:"view,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) errorBody {
	return errorBody{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v, answering the request
// itself when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// dayParam parses the {day} URL parameter.
func dayParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || !model.ValidDay(day) {
		writeJSON(w, http.StatusBadRequest, errorResponse("day must be an integer between 0 and 21"))
		return 0, false
	}
	return day, true
}

// writeError maps service and gateway errors onto HTTP statuses. view, when
// non-nil, is returned alongside so the client can keep the form populated.
func writeError(w http.ResponseWriter, r *http.Request, err error, view *service.View) {
	body := errorBody{Error: err.Error(), View: view}
	status := http.StatusInternalServerError

	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Error = "validation failed"
		for _, fe := range verr.Errors {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field, Message: fe.Message})
		}
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNoSession),
		errors.Is(err, service.ErrSessionMismatch),
		errors.Is(err, service.ErrSessionClosed):
		status = http.StatusUnauthorized
		body.Reauthenticate = true
	case errors.Is(err, repository.ErrPermissionDenied):
		status = http.StatusForbidden
		body.Error = "permission denied"
		body.Reauthenticate = true
	case errors.Is(err, service.ErrSaveInProgress),
		errors.Is(err, service.ErrDayNotReady),
		errors.Is(err, service.ErrStaleCompletion):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrUnavailable):
		status = http.StatusServiceUnavailable
		body.Error = "record store unavailable"
		body.Retryable = true
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrAssessmentNotFound),
		errors.Is(err, content.ErrDayNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}
