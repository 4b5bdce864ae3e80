package surge

import (
	"context"
	"time"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

// Estimator maps the demand/supply ratio near a pickup to a fare multiplier.
// Any collaborator failure degrades to a neutral 1.0.
type Estimator struct {
	Fleet    fleet.Registry
	Trips    storage.TripStore
	RadiusKm float64
	Window   time.Duration
	Min      float64
	Max      float64
	Clock    func() time.Time
}

const (
	DefaultRadiusKm = 8.0
	DefaultWindow   = 15 * time.Minute
	DefaultMin      = 1.0
	DefaultMax      = 2.0
)

func (e *Estimator) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Estimator) radius() float64 {
	if e.RadiusKm > 0 {
		return e.RadiusKm
	}
	return DefaultRadiusKm
}

func (e *Estimator) clamp(v float64) float64 {
	min, max := e.Min, e.Max
	if min <= 0 {
		min = DefaultMin
	}
	if max <= 0 {
		max = DefaultMax
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Near counts available vehicles and recent pending demand within the radius
// of the pickup and maps the ratio to a multiplier tier.
func (e *Estimator) Near(ctx context.Context, pickup models.Coord) float64 {
	supply, err := e.Fleet.Eligible(ctx, fleet.Query{Near: pickup, RadiusKm: e.radius()})
	if err != nil {
		return 1.0
	}

	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}
	pending, err := e.Trips.PendingCreatedSince(ctx, e.now().Add(-window))
	if err != nil {
		return 1.0
	}
	demand := 0
	for _, t := range pending {
		if geo.HaversineKm(t.Pickup, pickup) <= e.radius() {
			demand++
		}
	}

	drivers := len(supply)
	if drivers == 0 && demand > 0 {
		return e.clamp(1.5)
	}

	ratio := float64(demand) / maxf(1, float64(drivers))
	var s float64
	switch {
	case ratio >= 3:
		s = 1.8
	case ratio >= 2:
		s = 1.5
	case ratio >= 1.2:
		s = 1.2
	default:
		s = 1.0
	}
	return e.clamp(s)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
