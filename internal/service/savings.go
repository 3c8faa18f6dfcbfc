package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marginkit/challenge-go/internal/model"
)

// SavingsStore appends and lists savings deposits.
type SavingsStore interface {
	Add(ctx context.Context, userID string, amountCents int64, date time.Time) (*model.SavingsEntry, error)
	ListByUser(ctx context.Context, userID string) ([]model.SavingsEntry, error)
}

// SavingsService tracks deposits toward the emergency savings goal.
type SavingsService struct {
	logger *slog.Logger
	store  SavingsStore
	now    func() time.Time
}

// NewSavingsService creates a new SavingsService.
func NewSavingsService(logger *slog.Logger, store SavingsStore) *SavingsService {
	return &SavingsService{
		logger: logger.With("service", "savings"),
		store:  store,
		now:    time.Now,
	}
}

// Add records a deposit dated with the device's calendar day.
func (s *SavingsService) Add(ctx context.Context, userID string, req model.AddSavingsRequest) (model.SavingsEntry, error) {
	cents, err := req.Cents()
	if err != nil {
		return model.SavingsEntry{}, err
	}

	now := s.now()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	e, err := s.store.Add(ctx, userID, cents, date)
	if err != nil {
		return model.SavingsEntry{}, fmt.Errorf("adding deposit: %w", err)
	}
	s.logger.InfoContext(ctx, "deposit added", "user_id", userID, "amount_cents", cents)
	return *e, nil
}

// Summary totals the participant's deposits against the goal.
func (s *SavingsService) Summary(ctx context.Context, userID string) (model.SavingsSummary, error) {
	entries, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return model.SavingsSummary{}, fmt.Errorf("listing deposits: %w", err)
	}
	return model.SummarizeSavings(entries), nil
}
