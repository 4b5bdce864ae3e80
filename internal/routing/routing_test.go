package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

type failingProvider struct{ calls int }

func (f *failingProvider) Road(ctx context.Context, from, to models.Coord) (Metrics, error) {
	f.calls++
	return Metrics{}, errors.New("provider down")
}

type fixedProvider struct {
	m     Metrics
	calls int
}

func (f *fixedProvider) Road(ctx context.Context, from, to models.Coord) (Metrics, error) {
	f.calls++
	return f.m, nil
}

func TestRoadOrEstimateFallsBack(t *testing.T) {
	a := models.Coord{Lat: 0, Lng: 0}
	b := models.Coord{Lat: 1, Lng: 0} // ~111km
	m := RoadOrEstimate(context.Background(), &failingProvider{}, a, b)
	if m.DistanceKm < 110 || m.DistanceKm > 112 {
		t.Fatalf("expected ~111km fallback, got %f", m.DistanceKm)
	}
	if m.TrafficFactor != 1 {
		t.Fatalf("fallback traffic factor should be 1, got %f", m.TrafficFactor)
	}
	// ~111km at 35km/h is a bit over 3 hours
	if m.Duration < 3*time.Hour || m.Duration > 4*time.Hour {
		t.Fatalf("unexpected fallback duration %v", m.Duration)
	}
}

func TestRoadOrEstimateNilProvider(t *testing.T) {
	a := models.Coord{Lat: 0, Lng: 0}
	m := RoadOrEstimate(context.Background(), nil, a, a)
	if m.DistanceKm != 0 {
		t.Fatalf("expected 0 distance, got %f", m.DistanceKm)
	}
}

func TestRoadOrEstimateClampsTraffic(t *testing.T) {
	p := &fixedProvider{m: Metrics{
		DistanceKm:      5,
		Duration:        10 * time.Minute,
		TrafficDuration: 5 * time.Minute, // bogus: faster with traffic
		TrafficFactor:   0.5,
	}}
	m := RoadOrEstimate(context.Background(), p, models.Coord{}, models.Coord{Lat: 0.05})
	if m.TrafficDuration < m.Duration {
		t.Fatalf("traffic duration not clamped: %v < %v", m.TrafficDuration, m.Duration)
	}
	if m.TrafficFactor < 1 {
		t.Fatalf("traffic factor not clamped: %f", m.TrafficFactor)
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	p := &fixedProvider{m: Metrics{DistanceKm: 7, Duration: time.Minute, TrafficDuration: time.Minute, TrafficFactor: 1}}
	c := NewCache(p, time.Minute)
	a := models.Coord{Lat: 1, Lng: 1}
	b := models.Coord{Lat: 2, Lng: 2}
	for i := 0; i < 3; i++ {
		m, err := c.Road(context.Background(), a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.DistanceKm != 7 {
			t.Fatalf("unexpected distance %f", m.DistanceKm)
		}
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", p.calls)
	}
}
