// Package content serves the static day-by-day program catalog.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/marginkit/challenge-go/internal/model"
)

var ErrDayNotFound = errors.New("day not found in catalog")

// maxCatalogSize bounds the catalog response body.
const maxCatalogSize = 1 << 20

// Catalog loads days.json from the app origin once and keeps it in memory.
// The client's transport is expected to be the cache router, so the catalog
// is still available offline once it has been fetched or precached.
type Catalog struct {
	client *http.Client
	url    string

	mu   sync.Mutex
	days []model.Day
}

// NewCatalog creates a Catalog reading from catalogURL.
func NewCatalog(client *http.Client, catalogURL string) *Catalog {
	return &Catalog{client: client, url: catalogURL}
}

// All returns every day ordered by day number.
func (c *Catalog) All(ctx context.Context) ([]model.Day, error) {
	days, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Day, len(days))
	copy(out, days)
	return out, nil
}

// Day returns the entry for day.
func (c *Catalog) Day(ctx context.Context, day int) (model.Day, error) {
	days, err := c.load(ctx)
	if err != nil {
		return model.Day{}, err
	}
	i := sort.Search(len(days), func(i int) bool { return days[i].Day >= day })
	if i == len(days) || days[i].Day != day {
		return model.Day{}, ErrDayNotFound
	}
	return days[i], nil
}

// load fetches the catalog on first use. A failed fetch is retried on the
// next call.
func (c *Catalog) load(ctx context.Context) ([]model.Day, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.days != nil {
		return c.days, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching catalog: unexpected status %d", resp.StatusCode)
	}

	var days []model.Day
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogSize)).Decode(&days); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	if days == nil {
		days = []model.Day{}
	}
	c.days = days
	return days, nil
}

// CurrentDay returns the program day for a participant who started on start:
// whole calendar days elapsed in now's location, clamped to the program.
func CurrentDay(start, now time.Time) int {
	if start.IsZero() {
		return model.FirstDay
	}
	loc := now.Location()
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	// Hours/24 rounds away DST shifts of one hour.
	diff := int((n.Sub(s).Hours() + 12) / 24)
	if n.Before(s) {
		diff = -1
	}
	return max(model.FirstDay, min(diff, model.LastDay))
}
