package fare

import (
	"context"
	"sort"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/routing"
)

// Quote is the cheapest presented price for one vehicle class near a pickup.
type Quote struct {
	VehicleClass string   `json:"vehicle_class"`
	Price        int      `json:"price"`
	DistanceKm   float64  `json:"distance_km"`
	VehicleIDs   []string `json:"vehicle_ids"`
	VehicleCount int      `json:"vehicle_count"`
}

// Quotes prices the trip for every vehicle class with at least one available
// vehicle within radiusKm of the pickup, using each vehicle's own rate
// override when present. Quotes are sorted cheapest first.
func (c *Calculator) Quotes(ctx context.Context, reg fleet.Registry, pickup, dest models.Coord, radiusKm float64) ([]Quote, error) {
	road := routing.RoadOrEstimate(ctx, c.Routing, pickup, dest)
	surge := c.surgeNear(ctx, pickup)

	vehicles, err := reg.Eligible(ctx, fleet.Query{Near: pickup, RadiusKm: radiusKm})
	if err != nil {
		return nil, err
	}

	byClass := make(map[string][]models.Vehicle)
	for _, v := range vehicles {
		byClass[v.Class] = append(byClass[v.Class], v)
	}

	quotes := make([]Quote, 0, len(byClass))
	for class, vs := range byClass {
		best := -1
		var bestIDs []string
		for _, v := range vs {
			rate := ResolveRate(class, v.Rate)
			pickupKm := geo.HaversineKm(*v.Loc, pickup)
			p := PriceWithRate(road.DistanceKm, rate, pickupKm, road.TrafficFactor, surge)
			switch {
			case best < 0 || p < best:
				best = p
				bestIDs = []string{v.ID}
			case p == best:
				bestIDs = append(bestIDs, v.ID)
			}
		}
		if best < 0 {
			continue
		}
		quotes = append(quotes, Quote{
			VehicleClass: class,
			Price:        best,
			DistanceKm:   road.DistanceKm,
			VehicleIDs:   bestIDs,
			VehicleCount: len(vs),
		})
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Price < quotes[j].Price })
	return quotes, nil
}
