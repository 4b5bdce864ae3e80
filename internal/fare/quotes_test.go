package fare

import (
	"context"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/routing"
)

func TestQuotes_CheapestPerClassSorted(t *testing.T) {
	reg := fleet.NewMemoryRegistry()
	ctx := context.Background()
	loc := &models.Coord{Lat: 0, Lng: 0.001}
	_ = reg.Put(ctx, models.Vehicle{ID: "n1", Class: models.ClassNormal, Available: true, Loc: loc})
	_ = reg.Put(ctx, models.Vehicle{ID: "n2", Class: models.ClassNormal, Available: true, Loc: loc,
		Rate: &models.RateCard{PerKm: 5, MinCharge: 20}})
	_ = reg.Put(ctx, models.Vehicle{ID: "l1", Class: models.ClassLuxury, Available: true, Loc: loc})
	_ = reg.Put(ctx, models.Vehicle{ID: "offline", Class: models.ClassXL, Available: false, Loc: loc})

	c := &Calculator{
		Routing: fixedRoad{routing.Metrics{DistanceKm: 10, Duration: 10 * time.Minute, TrafficDuration: 10 * time.Minute, TrafficFactor: 1}},
		Surge:   fixedSurge{1},
	}
	quotes, err := c.Quotes(ctx, reg, models.Coord{}, models.Coord{Lat: 0.09}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected quotes for 2 classes, got %d: %+v", len(quotes), quotes)
	}
	// n2's discounted rate card wins the normal class: 5*10=50
	if quotes[0].VehicleClass != models.ClassNormal || quotes[0].Price != 50 {
		t.Fatalf("cheapest quote wrong: %+v", quotes[0])
	}
	if quotes[0].VehicleCount != 2 {
		t.Fatalf("normal class count = %d, want 2", quotes[0].VehicleCount)
	}
	if quotes[1].VehicleClass != models.ClassLuxury || quotes[1].Price != 120 {
		t.Fatalf("luxury quote wrong: %+v", quotes[1])
	}
	if quotes[0].Price > quotes[1].Price {
		t.Fatal("quotes not sorted cheapest first")
	}
}

func TestQuotes_EmptyFleet(t *testing.T) {
	c := &Calculator{Surge: fixedSurge{1}}
	quotes, err := c.Quotes(context.Background(), fleet.NewMemoryRegistry(), models.Coord{}, models.Coord{Lat: 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 0 {
		t.Fatalf("expected no quotes, got %+v", quotes)
	}
}
