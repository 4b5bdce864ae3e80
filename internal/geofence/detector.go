// Package geofence raises one-shot lifecycle events when a vehicle's
// position crosses distance thresholds around the pickup or destination.
package geofence

import (
	"sync"

	"github.com/example/trip-coordinator/internal/bus"
	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
)

// Distance thresholds in meters. These are domain constants, not tuning
// knobs.
const (
	ArrivalM          = 35
	AtDropoffM        = 20
	ApproachingM      = 200
	CompleteEnableM   = 60
	CompleteOverrideM = 120
)

// DropoffTier is presentation-only proximity status near the destination.
type DropoffTier int

const (
	TierEnroute DropoffTier = iota
	TierApproaching
	TierAtDropoff
)

// CompletionRule gates the operator's finish action by distance from the
// destination.
type CompletionRule int

const (
	// CompletionAllowed within CompleteEnableM.
	CompletionAllowed CompletionRule = iota
	// CompletionConfirm between the enable and override thresholds.
	CompletionConfirm
	// CompletionOverride beyond CompleteOverrideM: finishing needs an
	// explicit operator override, it is not auto-blocked.
	CompletionOverride
)

// Detector watches relayed positions for active trips. The announced set
// guarantees the arrival event fires at most once per trip.
type Detector struct {
	bus *bus.Bus

	mu        sync.Mutex
	announced map[string]struct{}
}

func NewDetector(b *bus.Bus) *Detector {
	return &Detector{bus: b, announced: make(map[string]struct{})}
}

// Observe evaluates one relayed position against the trip's geofences.
// Returns true when this call raised the arrival event.
func (d *Detector) Observe(t *models.Trip, at models.Coord) bool {
	if t == nil || t.Status.Terminal() {
		return false
	}
	// arrival applies only before pickup
	if t.Status != models.StatusAccepted || t.PickedAt != nil {
		return false
	}
	if geo.HaversineM(at, t.Pickup) > ArrivalM {
		return false
	}

	d.mu.Lock()
	if _, done := d.announced[t.ID]; done {
		d.mu.Unlock()
		return false
	}
	d.announced[t.ID] = struct{}{}
	d.mu.Unlock()

	observability.ArrivalsTotal.Inc()
	if d.bus != nil {
		d.bus.Publish(bus.ArrivedEvent{TripID: t.ID, VehicleID: t.VehicleID})
	}
	return true
}

// Forget releases the per-trip dedupe entry. Called when the trip starts
// or reaches a terminal state.
func (d *Detector) Forget(tripID string) {
	d.mu.Lock()
	delete(d.announced, tripID)
	d.mu.Unlock()
}

// Dropoff classifies the vehicle's proximity to the destination for UI
// status text. Never drives a state transition.
func Dropoff(at, destination models.Coord) DropoffTier {
	m := geo.HaversineM(at, destination)
	switch {
	case m <= AtDropoffM:
		return TierAtDropoff
	case m <= ApproachingM:
		return TierApproaching
	default:
		return TierEnroute
	}
}

// Completion reports whether finishing the trip at this position is
// allowed, needs confirmation, or needs an explicit override.
func Completion(at, destination models.Coord) CompletionRule {
	m := geo.HaversineM(at, destination)
	switch {
	case m <= CompleteEnableM:
		return CompletionAllowed
	case m <= CompleteOverrideM:
		return CompletionConfirm
	default:
		return CompletionOverride
	}
}
