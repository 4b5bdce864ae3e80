package relay

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/models"
	"github.com/example/trip-coordinator/internal/path"
	"github.com/example/trip-coordinator/internal/storage"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	vehicles map[string][]models.Position
	trips    map[string][]models.Position
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		vehicles: make(map[string][]models.Position),
		trips:    make(map[string][]models.Position),
	}
}

func (b *recordingBroadcaster) VehiclePosition(id string, at models.Position) {
	b.mu.Lock()
	b.vehicles[id] = append(b.vehicles[id], at)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) TripPosition(id string, at models.Position) {
	b.mu.Lock()
	b.trips[id] = append(b.trips[id], at)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) lastVehicle(id string) (models.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps := b.vehicles[id]
	if len(ps) == 0 {
		return models.Position{}, false
	}
	return ps[len(ps)-1], true
}

func (b *recordingBroadcaster) vehicleCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.vehicles[id])
}

func (b *recordingBroadcaster) tripCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.trips[id])
}

func newRelay(t *testing.T) (*Relay, *recordingBroadcaster, *storage.MemoryStore, *fleet.MemoryRegistry) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := fleet.NewMemoryRegistry()
	out := newRecordingBroadcaster()
	r := &Relay{
		Heartbeats: NewHeartbeatRegistry(10*time.Millisecond, time.Minute),
		Registry:   reg,
		Store:      store,
		Capture:    path.NewCapture(store, nil),
		Out:        out,
	}
	_ = reg.Put(context.Background(), models.Vehicle{ID: "v1", Available: true})
	return r, out, store, reg
}

func TestIngest_DropsInvalidFixes(t *testing.T) {
	r, out, _, reg := newRelay(t)
	ctx := context.Background()

	r.Ingest(ctx, "", 1, 2)
	r.Ingest(ctx, "v1", math.NaN(), 2)
	r.Ingest(ctx, "v1", 1, math.Inf(1))

	if out.vehicleCount("v1") != 0 {
		t.Fatal("invalid fix was broadcast")
	}
	v, _ := reg.ByID(ctx, "v1")
	if v.Loc != nil {
		t.Fatal("invalid fix reached the registry")
	}
	if r.Heartbeats.Active("v1") {
		t.Fatal("invalid fix started a heartbeat")
	}
}

func TestIngest_BroadcastsAndPersists(t *testing.T) {
	r, out, _, reg := newRelay(t)
	ctx := context.Background()

	r.Ingest(ctx, "v1", -33.92, 18.42)

	if out.vehicleCount("v1") != 1 {
		t.Fatalf("vehicle broadcasts = %d, want 1", out.vehicleCount("v1"))
	}
	v, _ := reg.ByID(ctx, "v1")
	if v.Loc == nil || v.Loc.Lat != -33.92 {
		t.Fatalf("registry location = %+v", v.Loc)
	}
	if !r.Heartbeats.Active("v1") {
		t.Fatal("heartbeat timer not started")
	}
	r.Heartbeats.Stop("v1")
}

func TestIngest_FeedsActiveTrip(t *testing.T) {
	r, out, store, _ := newRelay(t)
	ctx := context.Background()
	_ = store.Create(ctx, &models.Trip{
		ID: "t1", VehicleID: "v1", Status: models.StatusEnroute,
		Pickup: models.Coord{Lat: -33.92, Lng: 18.42}, CreatedAt: time.Now(),
	})

	r.Ingest(ctx, "v1", -33.921, 18.421)

	if out.tripCount("t1") != 1 {
		t.Fatalf("trip broadcasts = %d, want 1", out.tripCount("t1"))
	}
	got, _ := store.Get(ctx, "t1")
	if len(got.Path) != 1 {
		t.Fatalf("path points = %d, want 1", len(got.Path))
	}
	r.Heartbeats.Stop("v1")
}

func TestIngest_NoTripChannelWithoutActiveTrip(t *testing.T) {
	r, out, store, _ := newRelay(t)
	ctx := context.Background()
	_ = store.Create(ctx, &models.Trip{
		ID: "done", VehicleID: "v1", Status: models.StatusCompleted, CreatedAt: time.Now(),
	})

	r.Ingest(ctx, "v1", -33.92, 18.42)

	if out.tripCount("done") != 0 {
		t.Fatal("completed trip received positions")
	}
	r.Heartbeats.Stop("v1")
}

func TestIngest_HeartbeatRebroadcastsBothChannels(t *testing.T) {
	r, out, store, _ := newRelay(t)
	ctx := context.Background()
	_ = store.Create(ctx, &models.Trip{
		ID: "t1", VehicleID: "v1", Status: models.StatusAccepted,
		Pickup: models.Coord{Lat: 0, Lng: 1}, CreatedAt: time.Now(),
	})

	r.Ingest(ctx, "v1", -33.92, 18.42)
	time.Sleep(60 * time.Millisecond)
	r.Heartbeats.Stop("v1")

	if out.vehicleCount("v1") < 3 {
		t.Fatalf("vehicle rebroadcasts = %d, want several", out.vehicleCount("v1"))
	}
	if out.tripCount("t1") < 3 {
		t.Fatalf("trip rebroadcasts = %d, want several", out.tripCount("t1"))
	}
}

func TestIngest_BearingFollowsCourse(t *testing.T) {
	r, out, _, _ := newRelay(t)
	ctx := context.Background()

	r.Ingest(ctx, "v1", 0, 0)
	if pos, ok := out.lastVehicle("v1"); !ok || pos.Bearing != 0 {
		t.Fatalf("first fix bearing = %+v, want 0", pos)
	}

	// due north
	r.Ingest(ctx, "v1", 0.001, 0)
	pos, _ := out.lastVehicle("v1")
	if math.Abs(pos.Bearing) > 1 {
		t.Fatalf("northbound bearing = %f, want ~0", pos.Bearing)
	}

	// due east
	r.Ingest(ctx, "v1", 0.001, 0.001)
	pos, _ = out.lastVehicle("v1")
	if math.Abs(pos.Bearing-90) > 1 {
		t.Fatalf("eastbound bearing = %f, want ~90", pos.Bearing)
	}

	// stationary fix keeps the last course
	r.Ingest(ctx, "v1", 0.001, 0.001)
	pos, _ = out.lastVehicle("v1")
	if math.Abs(pos.Bearing-90) > 1 {
		t.Fatalf("stationary bearing = %f, want ~90", pos.Bearing)
	}
	r.Heartbeats.Stop("v1")
}

func TestIngest_RegistryFailureDoesNotBlockFanout(t *testing.T) {
	r, out, _, _ := newRelay(t)
	ctx := context.Background()
	// unknown vehicle: registry update fails but the fanout still runs
	r.Ingest(ctx, "ghost", 1, 2)
	if out.vehicleCount("ghost") != 1 {
		t.Fatal("fanout suppressed by registry failure")
	}
	r.Heartbeats.Stop("ghost")
}
