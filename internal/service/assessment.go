package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marginkit/challenge-go/internal/model"
)

// AssessmentStore persists self-assessments. Get returns
// repository.ErrAssessmentNotFound when the kind was never taken.
type AssessmentStore interface {
	Save(ctx context.Context, userID string, kind model.AssessmentKind, responses map[string]int) (*model.Assessment, error)
	Get(ctx context.Context, userID string, kind model.AssessmentKind) (*model.Assessment, error)
}

// AssessmentService records the pre and post challenge self-assessments and
// compares them.
type AssessmentService struct {
	logger *slog.Logger
	store  AssessmentStore
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(logger *slog.Logger, store AssessmentStore) *AssessmentService {
	return &AssessmentService{
		logger: logger.With("service", "assessment"),
		store:  store,
	}
}

// Questions returns the questionnaire in display order.
func (s *AssessmentService) Questions() []model.AssessmentQuestion {
	out := make([]model.AssessmentQuestion, len(model.AssessmentQuestions))
	copy(out, model.AssessmentQuestions)
	return out
}

// Save validates and stores the answers for kind, replacing earlier ones.
func (s *AssessmentService) Save(ctx context.Context, userID string, kind model.AssessmentKind, responses map[string]int) (model.Assessment, error) {
	if err := validateKind(kind); err != nil {
		return model.Assessment{}, err
	}
	if err := model.ValidateResponses(responses); err != nil {
		return model.Assessment{}, err
	}

	a, err := s.store.Save(ctx, userID, kind, responses)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("saving %s assessment: %w", kind, err)
	}
	s.logger.InfoContext(ctx, "assessment saved", "user_id", userID, "kind", kind)
	return *a, nil
}

// Get returns the stored assessment of kind.
func (s *AssessmentService) Get(ctx context.Context, userID string, kind model.AssessmentKind) (model.Assessment, error) {
	if err := validateKind(kind); err != nil {
		return model.Assessment{}, err
	}
	a, err := s.store.Get(ctx, userID, kind)
	if err != nil {
		return model.Assessment{}, err
	}
	return *a, nil
}

// Compare lines up the pre and post answers. Both must have been taken.
func (s *AssessmentService) Compare(ctx context.Context, userID string) (model.AssessmentComparison, error) {
	pre, err := s.store.Get(ctx, userID, model.AssessmentPre)
	if err != nil {
		return model.AssessmentComparison{}, fmt.Errorf("pre assessment: %w", err)
	}
	post, err := s.store.Get(ctx, userID, model.AssessmentPost)
	if err != nil {
		return model.AssessmentComparison{}, fmt.Errorf("post assessment: %w", err)
	}
	return model.CompareAssessments(*pre, *post)
}

func validateKind(kind model.AssessmentKind) error {
	if !kind.Valid() {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "kind", Message: "must be pre or post"}}}
	}
	return nil
}
