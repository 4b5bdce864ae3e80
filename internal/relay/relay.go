// Package relay ingests raw vehicle position fixes, persists the latest
// location, fans fixes out to trip and vehicle observers, and keeps a
// per-vehicle heartbeat rebroadcasting the last fix until it goes stale.
package relay

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geofence"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
	"github.com/example/trip-coordinator/internal/path"
	"github.com/example/trip-coordinator/internal/storage"
)

// Broadcaster delivers position updates to observers. Channels are
// partitioned per vehicle and per trip.
type Broadcaster interface {
	VehiclePosition(vehicleID string, at models.Position)
	TripPosition(tripID string, at models.Position)
}

type Relay struct {
	Heartbeats *HeartbeatRegistry
	Registry   fleet.Registry
	Store      storage.TripStore
	Capture    *path.Capture
	Fence      *geofence.Detector
	Out        Broadcaster
	Logger     *slog.Logger
	Clock      func() time.Time
}

func (r *Relay) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Ingest processes one raw fix. Malformed fixes are dropped silently; no
// error reaches the upstream transport. Fixes for distinct vehicles never
// serialize on each other.
func (r *Relay) Ingest(ctx context.Context, vehicleID string, lat, lng float64) {
	if vehicleID == "" || !finite(lat) || !finite(lng) {
		observability.FixesInvalid.Inc()
		return
	}
	at := models.Coord{Lat: lat, Lng: lng}
	now := r.now()

	r.Heartbeats.Update(vehicleID, at, now)
	pos, _, _ := r.Heartbeats.LastPosition(vehicleID)

	// best-effort: the registry write must not stall the fanout
	if err := r.Registry.UpdateLocation(ctx, vehicleID, at, now); err != nil {
		r.log().Warn("vehicle location not persisted", "vehicle", vehicleID, "error", err)
	}

	r.Out.VehiclePosition(vehicleID, pos)
	r.feedActiveTrip(ctx, vehicleID, pos)

	r.Heartbeats.Ensure(vehicleID, func(last models.Position) {
		r.Out.VehiclePosition(vehicleID, last)
		r.rebroadcastTrip(vehicleID, last)
	})

	observability.FixesIngested.Inc()
}

// feedActiveTrip relays the fix to the vehicle's active trip, the path
// recorder and the geofence detector.
func (r *Relay) feedActiveTrip(ctx context.Context, vehicleID string, at models.Position) {
	t, err := r.Store.ActiveTripForVehicle(ctx, vehicleID)
	if err != nil {
		return
	}
	r.Out.TripPosition(t.ID, at)
	if r.Capture != nil {
		r.Capture.Append(ctx, t.ID, at.Coord())
	}
	if r.Fence != nil {
		r.Fence.Observe(t, at.Coord())
	}
}

// rebroadcastTrip mirrors heartbeat ticks onto the active trip channel so
// trip observers see liveness between real fixes.
func (r *Relay) rebroadcastTrip(vehicleID string, at models.Position) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	t, err := r.Store.ActiveTripForVehicle(ctx, vehicleID)
	if err != nil {
		return
	}
	r.Out.TripPosition(t.ID, at)
}

func (r *Relay) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
