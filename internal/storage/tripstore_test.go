package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

func seedTrip(t *testing.T, store *MemoryStore, id string, status models.Status) {
	t.Helper()
	err := store.Create(context.Background(), &models.Trip{
		ID: id, RiderID: "r1", Status: status,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGet_ReturnsIsolatedCopy(t *testing.T) {
	store := NewMemoryStore()
	seedTrip(t, store, "t1", models.StatusPending)
	ctx := context.Background()
	_ = store.AppendPathPoint(ctx, "t1", models.PathPoint{Lat: 1})

	got, _ := store.Get(ctx, "t1")
	got.Status = models.StatusCancelled
	got.Path[0].Lat = 99

	again, _ := store.Get(ctx, "t1")
	if again.Status != models.StatusPending || again.Path[0].Lat != 1 {
		t.Fatal("store state mutated through a returned trip")
	}
}

func TestSetStatusIf(t *testing.T) {
	store := NewMemoryStore()
	seedTrip(t, store, "t1", models.StatusPending)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	if err := store.SetStatusIf(ctx, "t1", models.StatusPending, models.StatusAccepted, at); err != nil {
		t.Fatal(err)
	}
	if err := store.SetStatusIf(ctx, "t1", models.StatusPending, models.StatusAccepted, at); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if err := store.SetStatusIf(ctx, "nope", models.StatusPending, models.StatusAccepted, at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSetStatusIf_StampsTimestamps(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	store := NewMemoryStore()
	seedTrip(t, store, "t1", models.StatusAccepted)
	_ = store.SetStatusIf(ctx, "t1", models.StatusAccepted, models.StatusEnroute, at)
	got, _ := store.Get(ctx, "t1")
	if got.StartedAt == nil || !got.StartedAt.Equal(at) {
		t.Fatalf("StartedAt = %v", got.StartedAt)
	}

	_ = store.SetStatusIf(ctx, "t1", models.StatusEnroute, models.StatusCompleted, at.Add(time.Hour))
	got, _ = store.Get(ctx, "t1")
	if got.CompletedAt == nil || !got.CompletedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("CompletedAt = %v", got.CompletedAt)
	}

	store2 := NewMemoryStore()
	seedTrip(t, store2, "t2", models.StatusAccepted)
	_ = store2.SetStatusIf(ctx, "t2", models.StatusAccepted, models.StatusCancelled, at)
	got, _ = store2.Get(ctx, "t2")
	if got.CancelledAt == nil {
		t.Fatal("CancelledAt not stamped")
	}
}

func TestAppendPathPointOrder(t *testing.T) {
	store := NewMemoryStore()
	seedTrip(t, store, "t1", models.StatusEnroute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = store.AppendPathPoint(ctx, "t1", models.PathPoint{Lat: float64(i)})
	}
	got, _ := store.Get(ctx, "t1")
	if len(got.Path) != 3 || got.Path[0].Lat != 0 || got.Path[2].Lat != 2 {
		t.Fatalf("path = %+v", got.Path)
	}
}

func TestSetFinalFare(t *testing.T) {
	store := NewMemoryStore()
	seedTrip(t, store, "t1", models.StatusCompleted)
	ctx := context.Background()
	snap := models.FareSnapshot{Price: 70, DistanceKm: 10, DurationSec: 600, TrafficFactor: 1, Surge: 1}
	if err := store.SetFinalFare(ctx, "t1", snap); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, "t1")
	if got.Fare == nil || *got.Fare != snap {
		t.Fatalf("fare = %+v", got.Fare)
	}
}

func TestActiveTripForVehicle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, &models.Trip{ID: "old", VehicleID: "v1", Status: models.StatusAccepted, CreatedAt: base})
	_ = store.Create(ctx, &models.Trip{ID: "new", VehicleID: "v1", Status: models.StatusEnroute, CreatedAt: base.Add(time.Hour)})
	_ = store.Create(ctx, &models.Trip{ID: "done", VehicleID: "v1", Status: models.StatusCompleted, CreatedAt: base.Add(2 * time.Hour)})
	_ = store.Create(ctx, &models.Trip{ID: "other", VehicleID: "v2", Status: models.StatusAccepted, CreatedAt: base.Add(3 * time.Hour)})

	got, err := store.ActiveTripForVehicle(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" {
		t.Fatalf("active trip = %s, want new", got.ID)
	}

	if _, err := store.ActiveTripForVehicle(ctx, "idle"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPendingCreatedSince(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, &models.Trip{ID: "fresh", Status: models.StatusPending, CreatedAt: base})
	_ = store.Create(ctx, &models.Trip{ID: "awaiting", Status: models.StatusPaymentPending, CreatedAt: base})
	_ = store.Create(ctx, &models.Trip{ID: "stale", Status: models.StatusPending, CreatedAt: base.Add(-time.Hour)})
	_ = store.Create(ctx, &models.Trip{ID: "moving", Status: models.StatusEnroute, CreatedAt: base})

	got, err := store.PendingCreatedSince(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d trips, want 2", len(got))
	}
	for _, tr := range got {
		if tr.ID == "stale" || tr.ID == "moving" {
			t.Fatalf("unexpected trip %s in window", tr.ID)
		}
	}
}

func TestCompletedForVehicle_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Create(ctx, &models.Trip{ID: "a", VehicleID: "v1", Status: models.StatusCompleted, CreatedAt: base})
	_ = store.Create(ctx, &models.Trip{ID: "b", VehicleID: "v1", Status: models.StatusCompleted, CreatedAt: base.Add(time.Hour)})
	_ = store.Create(ctx, &models.Trip{ID: "c", VehicleID: "v1", Status: models.StatusCancelled, CreatedAt: base.Add(2 * time.Hour)})

	got, err := store.CompletedForVehicle(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("got %+v", got)
	}
}
