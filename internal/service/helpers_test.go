package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
)

var testSavedAt = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

type recordKey struct {
	user string
	day  int
}

// fakeGateway merge-writes into a map. getGate and mergeGate, when set, are
// waited on inside the call after signalling on the matching entered channel.
type fakeGateway struct {
	mu      sync.Mutex
	records map[recordKey]model.CheckinRecord
	getErr  error
	setErr  error
	merges  atomic.Int32

	getEntered   chan struct{}
	getGate      chan struct{}
	mergeEntered chan struct{}
	mergeGate    chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{records: make(map[recordKey]model.CheckinRecord)}
}

func (g *fakeGateway) Get(ctx context.Context, userID string, day int) (*model.CheckinRecord, error) {
	if g.getEntered != nil {
		g.getEntered <- struct{}{}
	}
	if g.getGate != nil {
		<-g.getGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	rec, ok := g.records[recordKey{userID, day}]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &rec, nil
}

func (g *fakeGateway) MergeSet(ctx context.Context, userID string, day int, p model.CheckinPatch) (*model.CheckinRecord, error) {
	g.merges.Add(1)
	if g.mergeEntered != nil {
		g.mergeEntered <- struct{}{}
	}
	if g.mergeGate != nil {
		<-g.mergeGate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.setErr != nil {
		return nil, g.setErr
	}

	key := recordKey{userID, day}
	rec, ok := g.records[key]
	if !ok {
		rec = model.CheckinRecord{UserID: userID, Day: day, Stress: 5, Sleep: 5}
	}
	if p.Completed != nil {
		rec.Completed = *p.Completed
	}
	if p.Stress != nil {
		rec.Stress = *p.Stress
	}
	if p.Sleep != nil {
		rec.Sleep = *p.Sleep
	}
	if p.Steps != nil {
		rec.Steps = *p.Steps
	}
	if p.Breathing != nil {
		rec.Breathing = *p.Breathing
	}
	if p.Meal != nil {
		rec.Meal = *p.Meal
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
	rec.SavedAt = testSavedAt
	g.records[key] = rec
	return &rec, nil
}

func (g *fakeGateway) record(userID string, day int) (model.CheckinRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[recordKey{userID, day}]
	return rec, ok
}

func (g *fakeGateway) put(rec model.CheckinRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[recordKey{rec.UserID, rec.Day}] = rec
}

func (g *fakeGateway) remove(userID string, day int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, recordKey{userID, day})
}

type memDrafts struct {
	mu       sync.Mutex
	drafts   map[recordKey]model.CheckinDraft
	getErr   error
	setErr   error
	clearErr error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[recordKey]model.CheckinDraft)}
}

func (m *memDrafts) Get(_ context.Context, userID string, day int) (*model.CheckinDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.drafts[recordKey{userID, day}]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDrafts) Set(_ context.Context, userID string, day int, d model.CheckinDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.drafts[recordKey{userID, day}] = d
	return nil
}

func (m *memDrafts) Clear(_ context.Context, userID string, day int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	delete(m.drafts, recordKey{userID, day})
	return nil
}

func (m *memDrafts) has(userID string, day int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.drafts[recordKey{userID, day}]
	return ok
}

var errOffline = errors.New("dial tcp: network is unreachable")
