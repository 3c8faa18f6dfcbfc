package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marginkit/challenge-go/internal/middleware"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/service"
)

// AssessmentHandler serves the pre and post self-assessments.
type AssessmentHandler struct {
	service *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(svc *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{service: svc}
}

// HandleQuestions handles GET /api/v1/assessments/questions requests.
func (h *AssessmentHandler) HandleQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Questions())
}

// HandleSave handles PUT /api/v1/assessments/{kind} requests.
func (h *AssessmentHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req model.SaveAssessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Save(r.Context(), userID, model.AssessmentKind(chi.URLParam(r, "kind")), req.Responses)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleGet handles GET /api/v1/assessments/{kind} requests.
func (h *AssessmentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	a, err := h.service.Get(r.Context(), userID, model.AssessmentKind(chi.URLParam(r, "kind")))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleCompare handles GET /api/v1/assessments/comparison requests.
func (h *AssessmentHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	c, err := h.service.Compare(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SavingsHandler serves the savings goal tracker.
type SavingsHandler struct {
	service *service.SavingsService
}

// NewSavingsHandler creates a new SavingsHandler.
func NewSavingsHandler(svc *service.SavingsService) *SavingsHandler {
	return &SavingsHandler{service: svc}
}

// HandleAdd handles POST /api/v1/savings requests.
func (h *SavingsHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req model.AddSavingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := h.service.Add(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleSummary handles GET /api/v1/savings requests.
func (h *SavingsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	s, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
