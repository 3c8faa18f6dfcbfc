package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ErrMiss is returned by Storage.Match when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Entry is a stored response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Storage is a set of named cache versions, each mapping request keys to
// entries, plus the bookkeeping of which version is current and which is
// installed but waiting.
type Storage interface {
	Match(ctx context.Context, version, key string) (*Entry, error)
	Put(ctx context.Context, version, key string, e Entry) error
	Versions(ctx context.Context) ([]string, error)
	DeleteVersion(ctx context.Context, version string) error
	Pointers(ctx context.Context) (current, pending string, err error)
	SetPointers(ctx context.Context, current, pending string) error
}

// RequestKey is the identity under which a request is cached.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + " " + u.String()
}

// entryFromResponse drains resp.Body into an Entry and replaces the body so
// the caller can still read it.
func entryFromResponse(resp *http.Response, now time.Time) (Entry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return Entry{}, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: now,
	}, nil
}

// Response rebuilds an *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("X-Cache", "HIT")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// MemoryStorage keeps cache versions in process memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	versions map[string]map[string]Entry
	current  string
	pending  string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{versions: make(map[string]map[string]Entry)}
}

func (m *MemoryStorage) Match(_ context.Context, version, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.versions[version][key]
	if !ok {
		return nil, ErrMiss
	}
	e.Header = e.Header.Clone()
	return &e, nil
}

func (m *MemoryStorage) Put(_ context.Context, version, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.versions[version]
	if !ok {
		v = make(map[string]Entry)
		m.versions[version] = v
	}
	e.Header = e.Header.Clone()
	v[key] = e
	return nil
}

func (m *MemoryStorage) Versions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.versions))
	for name := range m.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStorage) DeleteVersion(_ context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.versions, version)
	return nil
}

func (m *MemoryStorage) Pointers(_ context.Context) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.pending, nil
}

func (m *MemoryStorage) SetPointers(_ context.Context, current, pending string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current, m.pending = current, pending
	return nil
}
