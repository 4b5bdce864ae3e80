// Package path records a throttled breadcrumb trail per trip. The admitted
// points are the ground truth for the final fare's distance.
package path

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
	"github.com/example/trip-coordinator/internal/storage"
)

// Admission gates: a point is recorded when either threshold clears. This
// caps storage growth and write rate regardless of fix frequency.
const (
	MinGap   = 2500 * time.Millisecond
	MinDistM = 8.0
)

type lastPoint struct {
	loc models.Coord
	ts  time.Time
}

// Capture appends admitted points to the trip store. Persistence failures
// are logged and swallowed so the relay pipeline keeps running.
type Capture struct {
	store  storage.TripStore
	logger *slog.Logger
	clock  func() time.Time

	mu   sync.Mutex
	last map[string]lastPoint
}

func NewCapture(store storage.TripStore, logger *slog.Logger) *Capture {
	return &Capture{
		store:  store,
		logger: logger,
		clock:  time.Now,
		last:   make(map[string]lastPoint),
	}
}

// SetClock overrides the time source for tests.
func (c *Capture) SetClock(clock func() time.Time) { c.clock = clock }

// Append records the point if it clears the time gap or the distance gap
// from the last admitted point. The first point is always admitted.
// Returns whether the point was admitted.
func (c *Capture) Append(ctx context.Context, tripID string, at models.Coord) bool {
	now := c.clock()

	c.mu.Lock()
	prev, seen := c.last[tripID]
	fastEnough := !seen || now.Sub(prev.ts) >= MinGap
	farEnough := !seen || geo.HaversineM(prev.loc, at) >= MinDistM
	if !fastEnough && !farEnough {
		c.mu.Unlock()
		observability.PathPointsSkipped.Inc()
		return false
	}
	c.last[tripID] = lastPoint{loc: at, ts: now}
	c.mu.Unlock()

	pt := models.PathPoint{Lat: at.Lat, Lng: at.Lng, TS: now}
	if err := c.store.AppendPathPoint(ctx, tripID, pt); err != nil {
		// non-fatal: the relay must keep running through storage blips
		if c.logger != nil {
			c.logger.Warn("path point not persisted", "trip", tripID, "error", err)
		}
		return false
	}
	observability.PathPointsAdmitted.Inc()
	return true
}

// Forget drops the admission state for a finished trip.
func (c *Capture) Forget(tripID string) {
	c.mu.Lock()
	delete(c.last, tripID)
	c.mu.Unlock()
}
