package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrVersionUnchanged  = errors.New("cache version unchanged")
	ErrNothingToActivate = errors.New("no installed cache version waiting for activation")
	ErrInstallInProgress = errors.New("cache install already in progress")
)

// installConcurrency bounds parallel asset fetches during Install.
const installConcurrency = 4

// State is the lifecycle state of the cache.
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateInstalled
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// Manifest is a versioned list of same-origin assets needed for offline
// bootstrap.
type Manifest struct {
	Version string
	Assets  []string
}

// Validate checks the manifest is usable.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return errors.New("manifest version is empty")
	}
	if len(m.Assets) == 0 {
		return errors.New("manifest has no assets")
	}
	for _, a := range m.Assets {
		if !strings.HasPrefix(a, "/") {
			return fmt.Errorf("asset %q is not an absolute path", a)
		}
	}
	return nil
}

// Lifecycle owns the versioned asset cache: it populates new versions,
// cuts over to them and removes superseded ones.
type Lifecycle struct {
	log     *slog.Logger
	storage Storage
	network http.RoundTripper
	origin  *url.URL
	timeout time.Duration
	now     func() time.Time

	installMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current string
	pending string
}

// NewLifecycle creates a Lifecycle that fetches assets from origin over
// network, each fetch bounded by timeout.
func NewLifecycle(logger *slog.Logger, storage Storage, network http.RoundTripper, origin *url.URL, timeout time.Duration) *Lifecycle {
	if network == nil {
		network = http.DefaultTransport
	}
	return &Lifecycle{
		log:     logger.With("component", "cache_lifecycle"),
		storage: storage,
		network: network,
		origin:  origin,
		timeout: timeout,
		now:     time.Now,
	}
}

// Current returns the version requests are served from, or "" before the
// first activation.
func (l *Lifecycle) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// State returns the lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Restore loads the version pointers persisted by a previous process. A
// version that was installed but never activated is activated now, since the
// process that served the old version is gone.
func (l *Lifecycle) Restore(ctx context.Context) error {
	current, pending, err := l.storage.Pointers(ctx)
	if err != nil {
		return fmt.Errorf("loading cache pointers: %w", err)
	}

	l.mu.Lock()
	l.current, l.pending = current, pending
	switch {
	case pending != "":
		l.state = StateInstalled
	case current != "":
		l.state = StateActive
	}
	l.mu.Unlock()

	if pending != "" {
		return l.Activate(ctx)
	}
	return nil
}

// Deploy installs m and, when forceClaim is set, activates it immediately.
// Installing the version already being served is a no-op.
func (l *Lifecycle) Deploy(ctx context.Context, m Manifest, forceClaim bool) error {
	if err := l.Install(ctx, m); err != nil {
		if errors.Is(err, ErrVersionUnchanged) {
			l.log.Warn("cache version unchanged, keeping current assets", "version", m.Version)
			return nil
		}
		return err
	}
	if !forceClaim {
		return nil
	}
	return l.Activate(ctx)
}

// Install fetches every asset of m and stores them under m.Version. If any
// asset cannot be fetched the partial version is discarded and the current
// version keeps serving.
func (l *Lifecycle) Install(ctx context.Context, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !l.installMu.TryLock() {
		return ErrInstallInProgress
	}
	defer l.installMu.Unlock()

	l.mu.Lock()
	if m.Version == l.current {
		l.mu.Unlock()
		return ErrVersionUnchanged
	}
	prev := l.state
	l.state = StateInstalling
	l.mu.Unlock()

	entries, err := l.fetchAll(ctx, m.Assets)
	if err == nil {
		err = l.populate(ctx, m.Version, entries)
	}
	if err != nil {
		if delErr := l.storage.DeleteVersion(context.WithoutCancel(ctx), m.Version); delErr != nil {
			l.log.Warn("discarding partial cache version failed", "version", m.Version, "error", delErr)
		}
		l.mu.Lock()
		l.state = prev
		if l.pending == m.Version {
			l.pending = ""
			l.state = StateActive
			if l.current == "" {
				l.state = StateIdle
			}
			_ = l.storage.SetPointers(context.WithoutCancel(ctx), l.current, "")
		}
		l.mu.Unlock()
		l.log.Error("cache install failed", "version", m.Version, "error", err)
		return fmt.Errorf("installing cache %s: %w", m.Version, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.storage.SetPointers(ctx, l.current, m.Version); err != nil {
		l.state = prev
		return fmt.Errorf("recording installed cache %s: %w", m.Version, err)
	}
	l.pending = m.Version
	l.state = StateInstalled
	l.log.Info("cache installed", "version", m.Version, "assets", len(entries))
	return nil
}

// Activate cuts over to the installed version and deletes every other
// version store.
func (l *Lifecycle) Activate(ctx context.Context) error {
	l.mu.Lock()
	if l.pending == "" {
		l.mu.Unlock()
		return ErrNothingToActivate
	}
	next := l.pending
	if err := l.storage.SetPointers(ctx, next, ""); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("activating cache %s: %w", next, err)
	}
	prev := l.current
	l.current, l.pending = next, ""
	l.state = StateActive
	l.mu.Unlock()

	versions, err := l.storage.Versions(ctx)
	if err != nil {
		return fmt.Errorf("listing cache versions: %w", err)
	}
	for _, v := range versions {
		if v == next {
			continue
		}
		if err := l.storage.DeleteVersion(ctx, v); err != nil {
			return fmt.Errorf("deleting cache %s: %w", v, err)
		}
	}

	l.log.Info("cache activated", "version", next, "previous", prev)
	return nil
}

type fetchedAsset struct {
	key   string
	entry Entry
}

func (l *Lifecycle) fetchAll(ctx context.Context, assets []string) ([]fetchedAsset, error) {
	out := make([]fetchedAsset, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for i, asset := range assets {
		g.Go(func() error {
			fa, err := l.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}
			out[i] = fa
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Lifecycle) fetchAsset(ctx context.Context, asset string) (fetchedAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	u := l.origin.ResolveReference(&url.URL{Path: asset})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("asset %s: %w", asset, err)
	}
	resp, err := l.network.RoundTrip(req)
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("asset %s: %w", asset, err)
	}
	if !cacheable(req, resp) {
		resp.Body.Close()
		return fetchedAsset{}, fmt.Errorf("asset %s: unexpected status %d", asset, resp.StatusCode)
	}

	entry, err := entryFromResponse(resp, l.now())
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("asset %s: %w", asset, err)
	}
	return fetchedAsset{key: RequestKey(req), entry: entry}, nil
}

func (l *Lifecycle) populate(ctx context.Context, version string, assets []fetchedAsset) error {
	for _, a := range assets {
		if err := l.storage.Put(ctx, version, a.key, a.entry); err != nil {
			return fmt.Errorf("storing %s: %w", a.key, err)
		}
	}
	return nil
}
