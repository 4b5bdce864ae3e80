package fare

import (
	"context"
	"math"
	"time"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/routing"
)

// detourFactor inflates the straight-line distance when no breadcrumb path
// was recorded, accounting for road vs great-circle geometry.
const detourFactor = 1.25

// SurgeEstimator yields the demand/supply multiplier near a pickup point.
type SurgeEstimator interface {
	Near(ctx context.Context, pickup models.Coord) float64
}

// PriceWithRate is the core fare formula:
//
//	raw   = baseFare + perKm*tripKm + pickupPerKm*pickupKm
//	price = round(max(minCharge, raw) * max(1, traffic) * max(1, surge))
//
// The minimum charge floors the pre-multiplier subtotal, not the final price.
func PriceWithRate(tripKm float64, rate models.RateCard, pickupKm, trafficFactor, surge float64) int {
	distanceCost := rate.PerKm * math.Max(0, tripKm)
	pickupFee := rate.PickupPerKm * math.Max(0, pickupKm)
	raw := rate.BaseFare + distanceCost + pickupFee
	withMin := math.Max(rate.MinCharge, raw)
	price := math.Round(withMin * math.Max(1, trafficFactor) * math.Max(1, surge))
	if price < 0 {
		return 0
	}
	return int(price)
}

// Calculator produces estimates at dispatch time and the final fare at
// completion. Clock is overridable for tests; nil means time.Now.
type Calculator struct {
	Routing    routing.Provider
	Surge      SurgeEstimator
	WaitPerMin float64
	Clock      func() time.Time
}

func (c *Calculator) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Calculator) surgeNear(ctx context.Context, pickup models.Coord) float64 {
	if c.Surge == nil {
		return 1.0
	}
	return c.Surge.Near(ctx, pickup)
}

// Estimate computes the price presented with a dispatch offer. The pickup
// leg is billed only when the candidate vehicle's location is known.
func (c *Calculator) Estimate(ctx context.Context, pickup, dest models.Coord, class string, rate models.RateCard, vehicleLoc *models.Coord) int {
	road := routing.RoadOrEstimate(ctx, c.Routing, pickup, dest)
	pickupKm := 0.0
	if vehicleLoc != nil {
		pickupKm = geo.HaversineKm(*vehicleLoc, pickup)
	}
	surge := c.surgeNear(ctx, pickup)
	return PriceWithRate(road.DistanceKm, rate, pickupKm, road.TrafficFactor, surge)
}

// Final computes the completion fare from recorded travel data. Given the
// same stored path and timestamps (and a fixed surge input), recomputation
// yields the same snapshot.
func (c *Calculator) Final(ctx context.Context, t *models.Trip, rate models.RateCard) models.FareSnapshot {
	tripKm := geo.PathLengthKm(t.Path)
	if len(t.Path) < 2 {
		tripKm = geo.HaversineKm(t.Pickup, t.Destination) * detourFactor
	}

	completedAt := c.now()
	if t.CompletedAt != nil {
		completedAt = *t.CompletedAt
	}
	start := t.CreatedAt
	if t.PickedAt != nil {
		start = *t.PickedAt
	} else if t.StartedAt != nil {
		start = *t.StartedAt
	}
	actualSec := int(completedAt.Sub(start).Seconds())
	if actualSec < 1 {
		actualSec = 1
	}

	road := routing.RoadOrEstimate(ctx, c.Routing, t.Pickup, t.Destination)
	expectedSec := int(road.TrafficDuration.Seconds())
	if expectedSec < 60 {
		expectedSec = 60
	}

	trafficFactor := math.Max(1, float64(actualSec)/float64(expectedSec))
	surge := c.surgeNear(ctx, t.Pickup)

	price := PriceWithRate(tripKm, rate, 0, trafficFactor, surge)
	price += c.waitingFee(t)

	return models.FareSnapshot{
		Price:         price,
		DistanceKm:    tripKm,
		DurationSec:   actualSec,
		TrafficFactor: trafficFactor,
		Surge:         surge,
	}
}

// waitingFee charges the arrival-to-pickup gap at WaitPerMin, when enabled.
func (c *Calculator) waitingFee(t *models.Trip) int {
	if c.WaitPerMin <= 0 || t.ArrivedAt == nil || t.PickedAt == nil {
		return 0
	}
	waited := t.PickedAt.Sub(*t.ArrivedAt)
	if waited <= 0 {
		return 0
	}
	return int(math.Round(waited.Minutes() * c.WaitPerMin))
}
