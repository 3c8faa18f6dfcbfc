package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// versionSource reports the cache version requests are served from.
type versionSource interface {
	Current() string
}

// Router is an http.RoundTripper that applies the caching policy chosen by
// Rules to every request before handing it to the network transport.
type Router struct {
	log            *slog.Logger
	rules          Rules
	next           http.RoundTripper
	storage        Storage
	versions       versionSource
	refreshTimeout time.Duration
	now            func() time.Time

	refresh singleflight.Group
	wg      sync.WaitGroup
}

// NewRouter creates a Router. next performs the actual network round trip;
// refreshTimeout bounds background refreshes of cache-first entries.
func NewRouter(logger *slog.Logger, rules Rules, next http.RoundTripper, storage Storage, versions versionSource, refreshTimeout time.Duration) *Router {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Router{
		log:            logger.With("component", "cache_router"),
		rules:          rules,
		next:           next,
		storage:        storage,
		versions:       versions,
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := r.rules.Classify(Request{Method: req.Method, URL: req.URL})
	if policy == PolicyBypass {
		return r.next.RoundTrip(req)
	}

	version := r.versions.Current()
	if version == "" || req.Method != http.MethodGet {
		return r.next.RoundTrip(req)
	}

	key := RequestKey(req)
	if policy == PolicyCacheFirst {
		return r.cacheFirst(req, version, key)
	}
	return r.networkFirst(req, version, key)
}

// Wait blocks until in-flight background refreshes have finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) networkFirst(req *http.Request, version, key string) (*http.Response, error) {
	resp, err := r.fetch(req, version, key)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	if cached := r.match(req.Context(), version, key); cached != nil {
		r.log.Debug("network failed, serving cached copy", "key", key, "error", err)
		return cached.Response(req), nil
	}
	return nil, err
}

func (r *Router) cacheFirst(req *http.Request, version, key string) (*http.Response, error) {
	if cached := r.match(req.Context(), version, key); cached != nil {
		r.refreshInBackground(req, version, key)
		return cached.Response(req), nil
	}
	return r.fetch(req, version, key)
}

// fetch performs the network round trip and stores a cacheable response.
func (r *Router) fetch(req *http.Request, version, key string) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !cacheable(req, resp) {
		return resp, nil
	}

	entry, err := entryFromResponse(resp, r.now())
	if err != nil {
		return nil, err
	}
	// An activation during the round trip may have deleted version.
	if r.versions.Current() == version {
		r.put(req.Context(), version, key, entry)
	}
	return resp, nil
}

func (r *Router) refreshInBackground(req *http.Request, version, key string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _, _ = r.refresh.Do(version+" "+key, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), r.refreshTimeout)
			defer cancel()

			resp, err := r.next.RoundTrip(req.Clone(ctx))
			if err != nil {
				r.log.Debug("background refresh failed", "key", key, "error", err)
				return nil, err
			}
			defer resp.Body.Close()
			if !cacheable(req, resp) {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil, nil
			}

			entry, err := entryFromResponse(resp, r.now())
			if err != nil {
				return nil, err
			}
			if r.versions.Current() != version {
				return nil, nil
			}
			r.put(ctx, version, key, entry)
			return nil, nil
		})
	}()
}

// match returns the cached entry or nil. Storage errors count as a miss.
func (r *Router) match(ctx context.Context, version, key string) *Entry {
	e, err := r.storage.Match(ctx, version, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			r.log.Debug("cache read failed", "key", key, "error", err)
		}
		return nil
	}
	return e
}

func (r *Router) put(ctx context.Context, version, key string, e Entry) {
	if err := r.storage.Put(ctx, version, key, e); err != nil {
		r.log.Debug("cache write failed", "key", key, "error", err)
	}
}

// cacheable reports whether resp is a complete copy of the resource req
// names. Partial content is never stored under the full-resource key.
func cacheable(req *http.Request, resp *http.Response) bool {
	return resp.StatusCode == http.StatusOK && req.Header.Get("Range") == ""
}
