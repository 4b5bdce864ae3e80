// Package dispatch matches pending trips to the nearest eligible vehicle and
// handles the decline/re-dispatch cycle.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/trip-coordinator/internal/bus"
	"github.com/example/trip-coordinator/internal/fare"
	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/observability"
	"github.com/example/trip-coordinator/internal/storage"
	"github.com/example/trip-coordinator/internal/trip"
)

// ErrNoVehicle terminates one dispatch cycle: the eligible pool is empty or
// exhausted. The coordinator does not self-schedule retries.
var ErrNoVehicle = errors.New("no eligible vehicle")

// VehicleNotifier hands the offer to the vehicle side. There is no offer
// timeout: the decision arrives later as an accept or decline call.
type VehicleNotifier interface {
	Offer(ctx context.Context, vehicleID string, offer models.Offer) error
}

// RiderNotifier tells the rider side that matching failed.
type RiderNotifier interface {
	NoVehicleAvailable(ctx context.Context, tripID string)
}

type Coordinator struct {
	Registry fleet.Registry
	Store    storage.TripStore
	Machine  *trip.Machine
	Fare     *fare.Calculator
	Vehicles VehicleNotifier
	Rider    RiderNotifier
	Bus      *bus.Bus
	RadiusKm float64
	Logger   *slog.Logger

	mu       sync.Mutex
	declined map[string][]string
}

// Dispatch runs one matching cycle for a pending trip: pick the nearest
// eligible vehicle outside the exclusion set, attach an estimate, and hand
// the offer to the vehicle notifier. The trip stays pending until accepted.
func (c *Coordinator) Dispatch(ctx context.Context, tripID string, exclude []string) (*models.Vehicle, error) {
	t, err := c.Store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusPending {
		return nil, trip.ErrStateConflict
	}

	exclude = c.rememberDeclined(tripID, exclude)

	candidates, err := c.Registry.Eligible(ctx, fleet.Query{
		Class:    t.VehicleClass,
		Exclude:  exclude,
		Near:     t.Pickup,
		RadiusKm: c.RadiusKm,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		observability.DispatchExhausted.Inc()
		c.log().Info("dispatch exhausted", "trip", tripID, "excluded", len(exclude))
		if c.Rider != nil {
			c.Rider.NoVehicleAvailable(ctx, tripID)
		}
		return nil, ErrNoVehicle
	}

	// nearest first; ties resolve by the registry's stable order
	chosen := candidates[0]
	pickupKm := geo.HaversineKm(*chosen.Loc, t.Pickup)

	rate := fare.ResolveRate(chosen.Class, chosen.Rate)
	estimate := c.Fare.Estimate(ctx, t.Pickup, t.Destination, chosen.Class, rate, chosen.Loc)
	if err := c.Store.SetEstimate(ctx, tripID, estimate); err != nil {
		c.log().Warn("estimate not persisted", "trip", tripID, "error", err)
	}

	offer := models.Offer{
		TripID:       tripID,
		VehicleID:    chosen.ID,
		Pickup:       t.Pickup,
		Destination:  t.Destination,
		VehicleClass: chosen.Class,
		PickupKm:     pickupKm,
		Estimate:     estimate,
	}
	if err := c.Vehicles.Offer(ctx, chosen.ID, offer); err != nil {
		c.log().Warn("offer delivery failed", "trip", tripID, "vehicle", chosen.ID, "error", err)
	}
	observability.OffersTotal.Inc()
	if c.Bus != nil {
		c.Bus.Publish(bus.AssignedEvent{TripID: tripID, VehicleID: chosen.ID, Estimate: estimate})
	}
	c.log().Info("offer issued", "trip", tripID, "vehicle", chosen.ID, "pickup_km", pickupKm, "estimate", estimate)
	return &chosen, nil
}

// Accept finalizes the offer: pending moves to accepted and the matching
// phase's exclusion set is discarded. A losing accept gets ErrStateConflict.
func (c *Coordinator) Accept(ctx context.Context, tripID, vehicleID string) error {
	if err := c.Machine.Accept(ctx, tripID, vehicleID); err != nil {
		return err
	}
	observability.MatchesTotal.Inc()
	c.forget(tripID)
	return nil
}

// Decline re-enters the matching loop with the declining vehicle added to
// the exclusion set. Termination is natural: the pool shrinks every cycle.
func (c *Coordinator) Decline(ctx context.Context, tripID, vehicleID string) (*models.Vehicle, error) {
	return c.Dispatch(ctx, tripID, []string{vehicleID})
}

// rememberDeclined merges the new exclusions into the per-trip set and
// returns the full accumulated set for this matching phase.
func (c *Coordinator) rememberDeclined(tripID string, add []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declined == nil {
		c.declined = make(map[string][]string)
	}
	known := c.declined[tripID]
	for _, id := range add {
		seen := false
		for _, k := range known {
			if k == id {
				seen = true
				break
			}
		}
		if !seen {
			known = append(known, id)
		}
	}
	c.declined[tripID] = known
	out := make([]string, len(known))
	copy(out, known)
	return out
}

func (c *Coordinator) forget(tripID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.declined, tripID)
}

func (c *Coordinator) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
