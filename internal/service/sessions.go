package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/marginkit/challenge-go/internal/session"
)

var (
	ErrNoSession       = errors.New("no active session")
	ErrSessionMismatch = errors.New("token does not belong to the active session")
)

// SessionManager owns the Reconciler of the signed-in session. A sign-in
// builds a fresh one and closes its predecessor; a sign-out closes it.
type SessionManager struct {
	logger  *slog.Logger
	hub     *session.Hub
	gateway RecordGateway
	drafts  DraftStore

	mu      sync.Mutex
	seq     uint64
	current *Reconciler
}

// NewSessionManager creates a SessionManager fed by hub.
func NewSessionManager(logger *slog.Logger, hub *session.Hub, gateway RecordGateway, drafts DraftStore) *SessionManager {
	return &SessionManager{
		logger:  logger.With("service", "sessions"),
		hub:     hub,
		gateway: gateway,
		drafts:  drafts,
	}
}

// Run applies hub events until ctx is done, then closes the live session.
func (m *SessionManager) Run(ctx context.Context) error {
	sub := m.hub.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.closeLocked()
			m.mu.Unlock()
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.Apply(ev)
		}
	}
}

// Apply moves the manager to ev. Events older than the last applied one are
// ignored, so Apply is safe to call from several goroutines.
func (m *SessionManager) Apply(ev session.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Seq != 0 && ev.Seq <= m.seq {
		return
	}
	m.seq = ev.Seq

	switch ev.Kind {
	case session.SignedIn:
		if m.current != nil && m.current.SessionID() == ev.SessionID {
			return
		}
		m.closeLocked()
		m.current = NewReconciler(m.logger, ev.SessionID, ev.UserID, m.gateway, m.drafts)
		m.logger.Info("session started", "session_id", ev.SessionID, "user_id", ev.UserID)
	case session.SignedOut:
		m.closeLocked()
	}
}

// Current returns the live reconciler for the given user and session.
func (m *SessionManager) Current(userID, sessionID string) (*Reconciler, error) {
	if ev, ok := m.hub.Latest(); ok {
		m.Apply(ev)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	if m.current.UserID() != userID || m.current.SessionID() != sessionID {
		return nil, ErrSessionMismatch
	}
	return m.current, nil
}

func (m *SessionManager) closeLocked() {
	if m.current == nil {
		return
	}
	m.current.Close()
	m.logger.Info("session closed", "session_id", m.current.SessionID())
	m.current = nil
}
