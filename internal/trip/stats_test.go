package trip

import (
	"context"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

func TestComputeVehicleStats(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = store.Create(ctx, &models.Trip{
		ID: "a", VehicleID: "v1", Status: models.StatusCompleted,
		PaymentMethod: models.PaymentCash, CreatedAt: base,
		Fare: &models.FareSnapshot{Price: 70, DistanceKm: 10},
	})
	_ = store.Create(ctx, &models.Trip{
		ID: "b", VehicleID: "v1", Status: models.StatusCompleted,
		PaymentMethod: models.PaymentGateway, CreatedAt: base.Add(time.Hour),
		Fare: &models.FareSnapshot{Price: 45, DistanceKm: 4.5},
	})
	// an older record without a snapshot falls back to its estimate and path
	_ = store.Create(ctx, &models.Trip{
		ID: "c", VehicleID: "v1", Status: models.StatusCompleted,
		PaymentMethod: models.PaymentCash, CreatedAt: base.Add(-time.Hour),
		Estimate: 30,
		Path: []models.PathPoint{
			{Lat: 0, Lng: 0, TS: base},
			{Lat: 0, Lng: 0.01, TS: base.Add(time.Minute)},
		},
	})
	// noise: other vehicle, non-terminal trip
	_ = store.Create(ctx, &models.Trip{ID: "d", VehicleID: "v2", Status: models.StatusCompleted,
		CreatedAt: base, Fare: &models.FareSnapshot{Price: 999}})
	_ = store.Create(ctx, &models.Trip{ID: "e", VehicleID: "v1", Status: models.StatusEnroute, CreatedAt: base})

	s, err := ComputeVehicleStats(ctx, store, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalTrips != 3 {
		t.Fatalf("trips = %d, want 3", s.TotalTrips)
	}
	if s.TotalEarnings != 70+45+30 {
		t.Fatalf("earnings = %d, want 145", s.TotalEarnings)
	}
	if s.CashCount != 2 || s.GatewayCount != 1 {
		t.Fatalf("payment split = cash %d / gateway %d", s.CashCount, s.GatewayCount)
	}
	if s.TotalDistanceM < 15000 {
		t.Fatalf("distance = %dm, want snapshot kms plus path", s.TotalDistanceM)
	}
	if s.LastTrip == nil || s.LastTrip.ID != "b" {
		t.Fatalf("last trip = %+v, want b", s.LastTrip)
	}
}

func TestComputeVehicleStats_Empty(t *testing.T) {
	s, err := ComputeVehicleStats(context.Background(), storage.NewMemoryStore(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalTrips != 0 || s.LastTrip != nil {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}
