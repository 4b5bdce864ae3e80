package surge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/storage"
)

type failingFleet struct{}

func (failingFleet) ByID(ctx context.Context, id string) (*models.Vehicle, error) {
	return nil, errors.New("down")
}
func (failingFleet) Put(ctx context.Context, v models.Vehicle) error { return errors.New("down") }
func (failingFleet) UpdateLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	return errors.New("down")
}
func (failingFleet) SetAvailability(ctx context.Context, id string, available bool) error {
	return errors.New("down")
}
func (failingFleet) Eligible(ctx context.Context, q fleet.Query) ([]models.Vehicle, error) {
	return nil, errors.New("down")
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func setup(t *testing.T, drivers, demand int) *Estimator {
	t.Helper()
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	reg := fleet.NewMemoryRegistry()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < drivers; i++ {
		_ = reg.Put(ctx, models.Vehicle{
			ID: string(rune('a' + i)), Available: true,
			Loc: &models.Coord{Lat: 0, Lng: 0.001 * float64(i)},
		})
	}
	for i := 0; i < demand; i++ {
		_ = store.Create(ctx, &models.Trip{
			ID: string(rune('A' + i)), Status: models.StatusPending,
			Pickup:    models.Coord{Lat: 0, Lng: 0},
			CreatedAt: now.Add(-5 * time.Minute),
		})
	}
	return &Estimator{Fleet: reg, Trips: store, Clock: fixedClock(now)}
}

func TestNear_Tiers(t *testing.T) {
	cases := []struct {
		drivers, demand int
		want            float64
	}{
		{5, 0, 1.0},  // no demand
		{5, 5, 1.0},  // balanced
		{5, 6, 1.2},  // ratio 1.2
		{2, 4, 1.5},  // ratio 2
		{1, 3, 1.8},  // ratio 3
		{0, 2, 1.5},  // no supply at all
		{0, 0, 1.0},  // dead zone
		{10, 1, 1.0}, // oversupply
	}
	for _, c := range cases {
		e := setup(t, c.drivers, c.demand)
		got := e.Near(context.Background(), models.Coord{Lat: 0, Lng: 0})
		if got != c.want {
			t.Errorf("drivers=%d demand=%d: got %f want %f", c.drivers, c.demand, got, c.want)
		}
	}
}

func TestNear_ClampsToConfiguredRange(t *testing.T) {
	e := setup(t, 1, 3) // tier 1.8
	e.Max = 1.4
	if got := e.Near(context.Background(), models.Coord{}); got != 1.4 {
		t.Fatalf("max clamp: got %f want 1.4", got)
	}
	e = setup(t, 5, 0)
	e.Min = 1.1
	if got := e.Near(context.Background(), models.Coord{}); got != 1.1 {
		t.Fatalf("min clamp: got %f want 1.1", got)
	}
}

func TestNear_IgnoresDemandOutsideRadius(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	reg := fleet.NewMemoryRegistry()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	_ = reg.Put(ctx, models.Vehicle{ID: "v1", Available: true, Loc: &models.Coord{Lat: 0, Lng: 0}})
	// far pickup, well beyond the 8km default radius
	_ = store.Create(ctx, &models.Trip{ID: "far", Status: models.StatusPending,
		Pickup: models.Coord{Lat: 1, Lng: 1}, CreatedAt: now.Add(-time.Minute)})
	_ = store.Create(ctx, &models.Trip{ID: "far2", Status: models.StatusPending,
		Pickup: models.Coord{Lat: 1, Lng: 1}, CreatedAt: now.Add(-time.Minute)})

	e := &Estimator{Fleet: reg, Trips: store, Clock: fixedClock(now)}
	if got := e.Near(ctx, models.Coord{Lat: 0, Lng: 0}); got != 1.0 {
		t.Fatalf("distant demand counted: got %f", got)
	}
}

func TestNear_IgnoresStaleDemand(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	reg := fleet.NewMemoryRegistry()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	_ = reg.Put(ctx, models.Vehicle{ID: "v1", Available: true, Loc: &models.Coord{Lat: 0, Lng: 0}})
	for i, age := range []time.Duration{time.Hour, 2 * time.Hour} {
		_ = store.Create(ctx, &models.Trip{ID: string(rune('A' + i)), Status: models.StatusPending,
			Pickup: models.Coord{Lat: 0, Lng: 0}, CreatedAt: now.Add(-age)})
	}
	e := &Estimator{Fleet: reg, Trips: store, Clock: fixedClock(now)}
	if got := e.Near(ctx, models.Coord{Lat: 0, Lng: 0}); got != 1.0 {
		t.Fatalf("stale demand counted: got %f", got)
	}
}

func TestNear_CollaboratorFailureIsNeutral(t *testing.T) {
	e := &Estimator{Fleet: failingFleet{}, Trips: storage.NewMemoryStore()}
	if got := e.Near(context.Background(), models.Coord{}); got != 1.0 {
		t.Fatalf("failure should be neutral: got %f", got)
	}
}
