package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func readBody(t interface{ Fatalf(string, ...any) }, resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

var errOffline = errors.New("dial tcp: network is unreachable")

// fakeNetwork serves bodies by URL path and can be switched offline.
type fakeNetwork struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline bool
	calls   atomic.Int32
}

func newFakeNetwork(bodies map[string]string) *fakeNetwork {
	return &fakeNetwork{bodies: bodies, status: map[string]int{}}
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.offline {
		return nil, errOffline
	}
	if code, ok := n.status[req.URL.Path]; ok {
		return textResponse(req, code, "error"), nil
	}
	body, ok := n.bodies[req.URL.Path]
	if !ok {
		return textResponse(req, http.StatusNotFound, "not found"), nil
	}
	return textResponse(req, http.StatusOK, body), nil
}

func (n *fakeNetwork) set(path, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies[path] = body
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) fail(path string, code int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status[path] = code
}

// spyStorage counts storage calls and can be made to fail.
type spyStorage struct {
	*MemoryStorage
	matches atomic.Int32
	puts    atomic.Int32
	broken  atomic.Bool
}

func newSpyStorage() *spyStorage {
	return &spyStorage{MemoryStorage: NewMemoryStorage()}
}

var errDiskFull = errors.New("disk full")

func (s *spyStorage) Match(ctx context.Context, version, key string) (*Entry, error) {
	s.matches.Add(1)
	if s.broken.Load() {
		return nil, errDiskFull
	}
	return s.MemoryStorage.Match(ctx, version, key)
}

func (s *spyStorage) Put(ctx context.Context, version, key string, e Entry) error {
	s.puts.Add(1)
	if s.broken.Load() {
		return errDiskFull
	}
	return s.MemoryStorage.Put(ctx, version, key, e)
}

type fixedVersion string

func (v fixedVersion) Current() string { return string(v) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
