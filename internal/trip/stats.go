package trip

import (
	"context"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

// VehicleStats aggregates a vehicle's completed trips. Because final fares
// are idempotent snapshots, recomputing over the same store yields the same
// numbers.
type VehicleStats struct {
	TotalTrips     int          `json:"total_trips"`
	TotalDistanceM int          `json:"total_distance_m"`
	TotalEarnings  int          `json:"total_earnings"`
	CashCount      int          `json:"cash_count"`
	GatewayCount   int          `json:"gateway_count"`
	LastTrip       *models.Trip `json:"last_trip,omitempty"`
}

// ComputeVehicleStats re-reads completed trips for the vehicle and sums
// earnings and distance, preferring the fare snapshot and falling back to
// the recorded path.
func ComputeVehicleStats(ctx context.Context, store storage.TripStore, vehicleID string) (VehicleStats, error) {
	trips, err := store.CompletedForVehicle(ctx, vehicleID)
	if err != nil {
		return VehicleStats{}, err
	}
	var s VehicleStats
	for _, t := range trips {
		s.TotalTrips++
		if t.Fare != nil {
			s.TotalEarnings += t.Fare.Price
			s.TotalDistanceM += int(t.Fare.DistanceKm * 1000)
		} else {
			s.TotalEarnings += t.Estimate
			s.TotalDistanceM += int(geo.PathLengthKm(t.Path) * 1000)
		}
		switch t.PaymentMethod {
		case models.PaymentCash:
			s.CashCount++
		case models.PaymentGateway:
			s.GatewayCount++
		}
	}
	if len(trips) > 0 {
		s.LastTrip = trips[0]
	}
	return s, nil
}
