package model

import (
	"math"
	"time"
)

// SavingsGoalCents is the emergency buffer the savings tracker aims for.
const SavingsGoalCents = 500_00

// maxDepositCents bounds a single deposit.
const maxDepositCents = 1_000_000_00

// recentDeposits is how many deposits a summary lists.
const recentDeposits = 10

// SavingsEntry is one deposit into the participant's savings buffer.
type SavingsEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// AddSavingsRequest represents the body of POST /api/v1/savings. Amount is in
// dollars as typed by the participant.
type AddSavingsRequest struct {
	Amount float64 `json:"amount"`
}

// Cents validates the amount and converts it to whole cents.
func (r AddSavingsRequest) Cents() (int64, error) {
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return 0, &ValidationError{Errors: []FieldError{{Field: "amount", Message: "must be a number"}}}
	}
	cents := int64(math.Round(r.Amount * 100))
	if cents <= 0 {
		return 0, &ValidationError{Errors: []FieldError{{Field: "amount", Message: "must be positive"}}}
	}
	if cents > maxDepositCents {
		return 0, &ValidationError{Errors: []FieldError{{Field: "amount", Message: "is too large"}}}
	}
	return cents, nil
}

// SavingsSummary is the savings tracker view.
type SavingsSummary struct {
	TotalCents int64          `json:"total_cents"`
	GoalCents  int64          `json:"goal_cents"`
	Percent    int            `json:"percent"`
	Recent     []SavingsEntry `json:"recent"`
}

// SummarizeSavings totals entries, given oldest first, against the goal. The
// percentage is capped at 100 and Recent lists the newest deposits first.
func SummarizeSavings(entries []SavingsEntry) SavingsSummary {
	s := SavingsSummary{GoalCents: SavingsGoalCents, Recent: []SavingsEntry{}}
	for _, e := range entries {
		s.TotalCents += e.AmountCents
	}
	s.Percent = int(math.Round(float64(s.TotalCents) / float64(SavingsGoalCents) * 100))
	if s.Percent > 100 {
		s.Percent = 100
	}
	for i := len(entries) - 1; i >= 0 && len(s.Recent) < recentDeposits; i-- {
		s.Recent = append(s.Recent, entries[i])
	}
	return s
}
