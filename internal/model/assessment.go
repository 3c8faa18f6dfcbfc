package model

import (
	"fmt"
	"time"
)

// AssessmentKind tells the self-assessment taken before the challenge from
// the one taken after it.
type AssessmentKind string

const (
	AssessmentPre  AssessmentKind = "pre"
	AssessmentPost AssessmentKind = "post"
)

// Valid reports whether k is a known assessment kind.
func (k AssessmentKind) Valid() bool {
	return k == AssessmentPre || k == AssessmentPost
}

// AssessmentQuestion is one 1-10 slider of the self-assessment. For inverted
// questions a lower answer is the better one.
type AssessmentQuestion struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	MinLabel string `json:"min_label"`
	MaxLabel string `json:"max_label"`
	Inverted bool   `json:"inverted"`
}

// AssessmentQuestions is the fixed questionnaire, in display order.
var AssessmentQuestions = []AssessmentQuestion{
	{ID: "stress", Label: "How stressed do you feel on a daily basis?", MinLabel: "Not at all", MaxLabel: "Extremely", Inverted: true},
	{ID: "sleep", Label: "How would you rate your sleep quality?", MinLabel: "Very poor", MaxLabel: "Excellent"},
	{ID: "financial", Label: "How confident are you in your financial situation?", MinLabel: "Not confident", MaxLabel: "Very confident"},
	{ID: "energy", Label: "How would you rate your daily energy level?", MinLabel: "Very low", MaxLabel: "Very high"},
	{ID: "overwhelm", Label: "How often do you feel overwhelmed?", MinLabel: "Never", MaxLabel: "Constantly", Inverted: true},
	{ID: "savings", Label: "Do you have an emergency savings buffer?", MinLabel: "Nothing", MaxLabel: "$500+"},
	{ID: "exercise", Label: "How often do you exercise or move intentionally?", MinLabel: "Never", MaxLabel: "Daily"},
	{ID: "breathing", Label: "Do you practice any breathing or stress-relief techniques?", MinLabel: "Never", MaxLabel: "Daily"},
}

// Assessment is a participant's stored answers for one kind.
type Assessment struct {
	UserID      string         `json:"user_id"`
	Kind        AssessmentKind `json:"kind"`
	Responses   map[string]int `json:"responses"`
	CompletedAt time.Time      `json:"completed_at"`
}

// SaveAssessmentRequest represents the body of PUT /api/v1/assessments/{kind}.
type SaveAssessmentRequest struct {
	Responses map[string]int `json:"responses"`
}

// ValidateResponses requires an answer between 1 and 10 for every question
// and rejects unknown question IDs.
func ValidateResponses(responses map[string]int) error {
	var errs []FieldError
	known := make(map[string]bool, len(AssessmentQuestions))
	for _, q := range AssessmentQuestions {
		known[q.ID] = true
		v, ok := responses[q.ID]
		switch {
		case !ok:
			errs = append(errs, FieldError{Field: q.ID, Message: "is required"})
		case v < 1 || v > 10:
			errs = append(errs, FieldError{Field: q.ID, Message: "must be between 1 and 10"})
		}
	}
	for id := range responses {
		if !known[id] {
			errs = append(errs, FieldError{Field: id, Message: "unknown question"})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Trend of one answer between the two assessments.
type Trend string

const (
	TrendImproved  Trend = "improved"
	TrendUnchanged Trend = "unchanged"
	TrendDeclined  Trend = "declined"
)

// QuestionDelta compares one answer before and after the challenge.
type QuestionDelta struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Pre   int    `json:"pre"`
	Post  int    `json:"post"`
	Delta int    `json:"delta"`
	Trend Trend  `json:"trend"`
}

// AssessmentComparison is the pre/post result shown at the end of the challenge.
type AssessmentComparison struct {
	Questions []QuestionDelta `json:"questions"`
	Improved  int             `json:"improved"`
}

// CompareAssessments lines up pre and post answers question by question.
func CompareAssessments(pre, post Assessment) (AssessmentComparison, error) {
	if pre.Kind != AssessmentPre || post.Kind != AssessmentPost {
		return AssessmentComparison{}, fmt.Errorf("comparing %s with %s: %w", pre.Kind, post.Kind, ErrValidation)
	}

	out := AssessmentComparison{Questions: make([]QuestionDelta, 0, len(AssessmentQuestions))}
	for _, q := range AssessmentQuestions {
		d := QuestionDelta{
			ID:    q.ID,
			Label: q.Label,
			Pre:   pre.Responses[q.ID],
			Post:  post.Responses[q.ID],
		}
		d.Delta = d.Post - d.Pre

		better := d.Delta > 0
		if q.Inverted {
			better = d.Delta < 0
		}
		switch {
		case d.Delta == 0:
			d.Trend = TrendUnchanged
		case better:
			d.Trend = TrendImproved
			out.Improved++
		default:
			d.Trend = TrendDeclined
		}
		out.Questions = append(out.Questions, d)
	}
	return out, nil
}
