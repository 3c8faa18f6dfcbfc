package service

import (
	"context"
	"math"
	"time"

	"github.com/marginkit/challenge-go/internal/content"
	"github.com/marginkit/challenge-go/internal/model"
)

// RecordLister lists a participant's stored check-ins.
type RecordLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.CheckinRecord, error)
}

// UserLookup finds a participant by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

var phases = []struct {
	name        string
	first, last int
}{
	{"Welcome", 0, 0},
	{"Foundation", 1, 7},
	{"Momentum", 8, 14},
	{"Activation", 15, 21},
}

// ProgressService summarises a participant's standing in the program.
type ProgressService struct {
	users   UserLookup
	records RecordLister
	now     func() time.Time
}

// NewProgressService creates a new ProgressService.
func NewProgressService(users UserLookup, records RecordLister) *ProgressService {
	return &ProgressService{users: users, records: records, now: time.Now}
}

// Progress computes the summary for a participant as of today.
func (s *ProgressService) Progress(ctx context.Context, userID string) (model.Progress, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Progress{}, err
	}
	records, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return model.Progress{}, err
	}
	return computeProgress(content.CurrentDay(user.ChallengeStartDate, s.now()), records), nil
}

func computeProgress(currentDay int, records []model.CheckinRecord) model.Progress {
	byDay := make(map[int]model.CheckinRecord, len(records))
	completed := 0
	for _, rec := range records {
		byDay[rec.Day] = rec
		if rec.Completed {
			completed++
		}
	}

	// Today's missing check-in does not break the streak.
	streak := 0
	for d := currentDay; d >= model.FirstDay; d-- {
		if rec, ok := byDay[d]; ok && rec.Completed {
			streak++
		} else if d < currentDay {
			break
		}
	}

	percent := 0
	if currentDay > 0 {
		percent = int(math.Round(float64(completed) / float64(currentDay) * 100))
	}

	p := model.Progress{
		CurrentDay:    currentDay,
		CompletedDays: completed,
		Streak:        streak,
		Percent:       percent,
		Phases:        make([]model.PhaseProgress, 0, len(phases)),
		History:       []model.HistoryEntry{},
	}
	for _, ph := range phases {
		status := model.PhaseUpcoming
		switch {
		case currentDay > ph.last:
			status = model.PhaseDone
		case currentDay >= ph.first:
			status = model.PhaseActive
		}
		p.Phases = append(p.Phases, model.PhaseProgress{
			Name: ph.name, FirstDay: ph.first, LastDay: ph.last, Status: status,
		})
	}
	for d := min(currentDay, model.LastDay); d >= model.FirstDay; d-- {
		rec, ok := byDay[d]
		if !ok {
			continue
		}
		p.History = append(p.History, model.HistoryEntry{
			Day: d, Completed: rec.Completed, Stress: rec.Stress, Sleep: rec.Sleep,
		})
	}
	return p
}
