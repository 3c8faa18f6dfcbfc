package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/marginkit/challenge-go/internal/localstore"
	"github.com/marginkit/challenge-go/internal/middleware"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
	"github.com/marginkit/challenge-go/internal/service"
	"github.com/marginkit/challenge-go/internal/session"
)

const testSecret = "handler-test-secret"

type stubUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

func (s *stubUsers) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = "user-" + u.Email
	s.users[u.ID] = *u
	return nil
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (s *stubUsers) UpdateAuthHash(context.Context, string, string) error { return nil }

// stubGateway stores whole records and fails MergeSet with err when set.
type stubGateway struct {
	mu      sync.Mutex
	records map[int]model.CheckinRecord
	err     error
}

func (g *stubGateway) Get(_ context.Context, _ string, day int) (*model.CheckinRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[day]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &rec, nil
}

func (g *stubGateway) MergeSet(_ context.Context, userID string, day int, p model.CheckinPatch) (*model.CheckinRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	rec := model.CheckinRecord{
		UserID: userID, Day: day, Completed: *p.Completed, Stress: *p.Stress, Sleep: *p.Sleep,
		Steps: *p.Steps, Breathing: *p.Breathing, Meal: *p.Meal, Notes: *p.Notes,
		SavedAt: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	g.records[day] = rec
	return &rec, nil
}

func (g *stubGateway) ListByUser(context.Context, string) ([]model.CheckinRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.CheckinRecord, 0, len(g.records))
	for d := model.FirstDay; d <= model.LastDay; d++ {
		if rec, ok := g.records[d]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (g *stubGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type testAPI struct {
	server  *httptest.Server
	hub     *session.Hub
	gateway *stubGateway
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := localstore.Open(logger, filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	users := &stubUsers{users: make(map[string]model.User)}
	gw := &stubGateway{records: make(map[int]model.CheckinRecord)}
	hub := session.NewHub()

	authH := NewAuthHandler(service.NewAuthService(logger, users, hub, testSecret, time.Hour))
	checkinH := NewCheckinHandler(service.NewSessionManager(logger, hub, gw, store.Drafts()))
	progressH := NewProgressHandler(service.NewProgressService(users, gw))

	r := chi.NewRouter()
	r.Post("/api/v1/auth/register", authH.HandleRegister)
	r.Post("/api/v1/auth/login", authH.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(testSecret))
		r.Post("/api/v1/auth/logout", authH.HandleLogout)
		r.Get("/api/v1/auth/me", authH.HandleMe)
		r.Get("/api/v1/checkins/{day}", checkinH.HandleEnterDay)
		r.Put("/api/v1/checkins/{day}/draft", checkinH.HandleFieldChange)
		r.Post("/api/v1/checkins/{day}", checkinH.HandleSubmit)
		r.Get("/api/v1/progress", progressH.HandleProgress)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, hub: hub, gateway: gw}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "pw-123456", "name": "Test Participant",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["token"].(string)
}
