package relay

import (
	"sync"
	"time"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
)

const (
	// DefaultInterval is the rebroadcast cadence observers can rely on.
	DefaultInterval = time.Second
	// DefaultStaleness is how long a vehicle may stay silent before its
	// timer stops and its entry is discarded.
	DefaultStaleness = 2 * time.Minute
)

type hbEntry struct {
	mu      sync.Mutex
	loc     models.Coord
	bearing float64
	seen    time.Time
	stop    chan struct{}
}

// HeartbeatRegistry holds the last known fix and rebroadcast timer per
// vehicle. At most one timer exists per vehicle; Ensure on a vehicle with a
// live timer is a no-op. The registry is passed by reference at
// construction so a multi-instance deployment can swap it for a shared
// implementation.
type HeartbeatRegistry struct {
	Interval  time.Duration
	Staleness time.Duration

	mu      sync.Mutex
	entries map[string]*hbEntry
}

func NewHeartbeatRegistry(interval, staleness time.Duration) *HeartbeatRegistry {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &HeartbeatRegistry{
		Interval:  interval,
		Staleness: staleness,
		entries:   make(map[string]*hbEntry),
	}
}

// Update records the latest fix for a vehicle, creating its entry if absent.
// The course is derived from the previous fix; a stationary vehicle keeps the
// last course. Updates for distinct vehicles never contend on the same lock
// for long; the registry lock only guards the map itself.
func (h *HeartbeatRegistry) Update(vehicleID string, loc models.Coord, at time.Time) {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	if !ok {
		e = &hbEntry{}
		h.entries[vehicleID] = e
	}
	h.mu.Unlock()

	e.mu.Lock()
	if !e.seen.IsZero() && e.loc != loc {
		e.bearing = geo.Bearing(e.loc, loc)
	}
	e.loc = loc
	e.seen = at
	e.mu.Unlock()
}

// Last returns the vehicle's last known fix.
func (h *HeartbeatRegistry) Last(vehicleID string) (models.Coord, time.Time, bool) {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	h.mu.Unlock()
	if !ok {
		return models.Coord{}, time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loc, e.seen, true
}

// LastPosition returns the last known fix with its derived course.
func (h *HeartbeatRegistry) LastPosition(vehicleID string) (models.Position, time.Time, bool) {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	h.mu.Unlock()
	if !ok {
		return models.Position{}, time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.Position{Lat: e.loc.Lat, Lng: e.loc.Lng, Bearing: e.bearing}, e.seen, true
}

// Ensure starts the rebroadcast timer for a vehicle if none is running.
// Every interval the publish callback receives the last known fix; once the
// fix is older than the staleness window the timer stops and the entry is
// discarded. Returns true when a new timer was started.
func (h *HeartbeatRegistry) Ensure(vehicleID string, publish func(models.Position)) bool {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	e.mu.Lock()
	if e.stop != nil {
		e.mu.Unlock()
		h.mu.Unlock()
		return false
	}
	stop := make(chan struct{})
	e.stop = stop
	e.mu.Unlock()
	h.mu.Unlock()

	observability.HeartbeatsActive.Inc()
	go h.run(vehicleID, e, stop, publish)
	return true
}

func (h *HeartbeatRegistry) run(vehicleID string, e *hbEntry, stop chan struct{}, publish func(models.Position)) {
	defer observability.HeartbeatsActive.Dec()
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			pos := models.Position{Lat: e.loc.Lat, Lng: e.loc.Lng, Bearing: e.bearing}
			seen := e.seen
			e.mu.Unlock()
			if time.Since(seen) > h.Staleness {
				h.discard(vehicleID, e)
				return
			}
			publish(pos)
		}
	}
}

func (h *HeartbeatRegistry) discard(vehicleID string, e *hbEntry) {
	h.mu.Lock()
	if cur, ok := h.entries[vehicleID]; ok && cur == e {
		delete(h.entries, vehicleID)
	}
	h.mu.Unlock()
	e.mu.Lock()
	e.stop = nil
	e.mu.Unlock()
}

// Stop halts the vehicle's timer and drops its entry, for an explicit
// offline signal.
func (h *HeartbeatRegistry) Stop(vehicleID string) {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	if ok {
		delete(h.entries, vehicleID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	e.mu.Unlock()
}

// Active reports whether the vehicle currently has a live timer.
func (h *HeartbeatRegistry) Active(vehicleID string) bool {
	h.mu.Lock()
	e, ok := h.entries[vehicleID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}
