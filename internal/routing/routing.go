package routing

import (
	"context"
	"time"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
)

// AssumedSpeedKmh is the fallback average road speed when no provider data
// is available.
const AssumedSpeedKmh = 35.0

// Metrics describes road travel between two points.
type Metrics struct {
	DistanceKm      float64
	Duration        time.Duration
	TrafficDuration time.Duration
	TrafficFactor   float64
}

// Provider returns road distance and duration between two points.
type Provider interface {
	Road(ctx context.Context, from, to models.Coord) (Metrics, error)
}

// Estimate computes great-circle metrics at the assumed speed. It is the
// degradation path for every provider failure.
func Estimate(from, to models.Coord) Metrics {
	km := geo.HaversineKm(from, to)
	dur := time.Duration(km / AssumedSpeedKmh * float64(time.Hour))
	return Metrics{DistanceKm: km, Duration: dur, TrafficDuration: dur, TrafficFactor: 1}
}

// RoadOrEstimate queries the provider and falls back to the great-circle
// estimate on any error or missing data. Provider failures are never
// surfaced to the caller.
func RoadOrEstimate(ctx context.Context, p Provider, from, to models.Coord) Metrics {
	if p == nil {
		return Estimate(from, to)
	}
	m, err := p.Road(ctx, from, to)
	if err != nil || m.Duration <= 0 {
		return Estimate(from, to)
	}
	if m.TrafficDuration < m.Duration {
		m.TrafficDuration = m.Duration
	}
	if m.TrafficFactor < 1 {
		m.TrafficFactor = 1
	}
	return m
}
