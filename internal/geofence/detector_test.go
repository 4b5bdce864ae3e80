package geofence

import (
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

// offsetNorth returns a point the given number of meters north of c.
func offsetNorth(c models.Coord, m float64) models.Coord {
	return models.Coord{Lat: c.Lat + m/111194.9, Lng: c.Lng}
}

func tsp(t time.Time) *time.Time { return &t }

func acceptedTrip() *models.Trip {
	return &models.Trip{
		ID:          "t1",
		VehicleID:   "v1",
		Status:      models.StatusAccepted,
		Pickup:      models.Coord{Lat: -33.92, Lng: 18.42},
		Destination: models.Coord{Lat: -33.95, Lng: 18.47},
	}
}

func TestObserve_ArrivalFiresOnce(t *testing.T) {
	d := NewDetector(nil)
	tr := acceptedTrip()
	near := offsetNorth(tr.Pickup, 20)

	if !d.Observe(tr, near) {
		t.Fatal("arrival inside the fence not raised")
	}
	if d.Observe(tr, near) {
		t.Fatal("arrival raised twice")
	}
	if d.Observe(tr, tr.Pickup) {
		t.Fatal("arrival raised twice from a different fix")
	}
}

func TestObserve_OutsideFence(t *testing.T) {
	d := NewDetector(nil)
	tr := acceptedTrip()
	if d.Observe(tr, offsetNorth(tr.Pickup, 50)) {
		t.Fatal("arrival raised outside the fence")
	}
	// moving inside afterwards still fires
	if !d.Observe(tr, offsetNorth(tr.Pickup, 10)) {
		t.Fatal("arrival not raised after entering the fence")
	}
}

func TestObserve_OnlyBeforePickup(t *testing.T) {
	d := NewDetector(nil)

	picked := acceptedTrip()
	picked.PickedAt = tsp(time.Now())
	if d.Observe(picked, picked.Pickup) {
		t.Fatal("arrival raised after pickup")
	}

	enroute := acceptedTrip()
	enroute.Status = models.StatusEnroute
	if d.Observe(enroute, enroute.Pickup) {
		t.Fatal("arrival raised for a moving trip")
	}

	done := acceptedTrip()
	done.Status = models.StatusCompleted
	if d.Observe(done, done.Pickup) {
		t.Fatal("arrival raised for a terminal trip")
	}

	if d.Observe(nil, models.Coord{}) {
		t.Fatal("nil trip observed")
	}
}

func TestForget_AllowsReannounce(t *testing.T) {
	d := NewDetector(nil)
	tr := acceptedTrip()
	at := offsetNorth(tr.Pickup, 5)
	if !d.Observe(tr, at) {
		t.Fatal("first arrival not raised")
	}
	d.Forget(tr.ID)
	if !d.Observe(tr, at) {
		t.Fatal("arrival not raised after Forget")
	}
}

func TestDropoffTiers(t *testing.T) {
	dest := models.Coord{Lat: -33.95, Lng: 18.47}
	cases := []struct {
		meters float64
		want   DropoffTier
	}{
		{5, TierAtDropoff},
		{19, TierAtDropoff},
		{30, TierApproaching},
		{199, TierApproaching},
		{250, TierEnroute},
		{5000, TierEnroute},
	}
	for _, c := range cases {
		if got := Dropoff(offsetNorth(dest, c.meters), dest); got != c.want {
			t.Errorf("at %.0fm: got %v want %v", c.meters, got, c.want)
		}
	}
}

func TestCompletionRules(t *testing.T) {
	dest := models.Coord{Lat: -33.95, Lng: 18.47}
	cases := []struct {
		meters float64
		want   CompletionRule
	}{
		{10, CompletionAllowed},
		{59, CompletionAllowed},
		{80, CompletionConfirm},
		{119, CompletionConfirm},
		{150, CompletionOverride},
		{2000, CompletionOverride},
	}
	for _, c := range cases {
		if got := Completion(offsetNorth(dest, c.meters), dest); got != c.want {
			t.Errorf("at %.0fm: got %v want %v", c.meters, got, c.want)
		}
	}
}
