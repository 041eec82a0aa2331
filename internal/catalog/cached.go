package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

// DefaultCacheTTL is how long a vehicle list is reused.
const DefaultCacheTTL = time.Minute

// Cached memoizes a Source for ttl. When a refresh fails and a previous list
// exists, the stale list is served and the error is logged.
type Cached struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	vehicles []models.Vehicle
	fetched  time.Time
}

// NewCached wraps src. A non-positive ttl uses DefaultCacheTTL.
func NewCached(src Source, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{src: src, ttl: ttl, now: time.Now}
}

// ListVehicles implements Source.
func (c *Cached) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.vehicles != nil && now.Sub(c.fetched) < c.ttl {
		return append([]models.Vehicle(nil), c.vehicles...), nil
	}
	vehicles, err := c.src.ListVehicles(ctx)
	if err != nil {
		if c.vehicles != nil {
			slog.Warn("Catalog refresh failed, serving cached list", "error", err, "age", now.Sub(c.fetched))
			return append([]models.Vehicle(nil), c.vehicles...), nil
		}
		return nil, err
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	c.vehicles = vehicles
	c.fetched = now
	return append([]models.Vehicle(nil), vehicles...), nil
}

// FetchImage forwards to the wrapped source when it can fetch images.
func (c *Cached) FetchImage(ctx context.Context, ref string) (models.Media, error) {
	if f, ok := c.src.(ImageFetcher); ok {
		return f.FetchImage(ctx, ref)
	}
	return models.Media{}, ErrNotFound
}
