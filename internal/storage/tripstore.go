package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/trip-coordinator/internal/models"
)

var (
	// ErrNotFound is returned when a trip id is unknown.
	ErrNotFound = errors.New("trip not found")
	// ErrConflict is returned when a conditional status update loses a race.
	ErrConflict = errors.New("trip status conflict")
)

// TripStore defines persistence operations for trips. SetStatusIf must be
// atomic: the status changes only if it currently equals the expected value.
type TripStore interface {
	Create(ctx context.Context, t *models.Trip) error
	Get(ctx context.Context, id string) (*models.Trip, error)
	Update(ctx context.Context, t *models.Trip) error
	SetStatusIf(ctx context.Context, id string, from, to models.Status, at time.Time) error
	AttachVehicle(ctx context.Context, id, vehicleID string) error
	SetEstimate(ctx context.Context, id string, estimate int) error
	AppendPathPoint(ctx context.Context, id string, p models.PathPoint) error
	SetFinalFare(ctx context.Context, id string, f models.FareSnapshot) error
	ActiveTripForVehicle(ctx context.Context, vehicleID string) (*models.Trip, error)
	PendingCreatedSince(ctx context.Context, since time.Time) ([]*models.Trip, error)
	CompletedForVehicle(ctx context.Context, vehicleID string) ([]*models.Trip, error)
}

// MemoryStore keeps trips in a map. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	trips map[string]*models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]*models.Trip)}
}

func cloneTrip(t *models.Trip) *models.Trip {
	c := *t
	if t.Path != nil {
		c.Path = make([]models.PathPoint, len(t.Path))
		copy(c.Path, t.Path)
	}
	if t.Fare != nil {
		f := *t.Fare
		c.Fare = &f
	}
	return &c
}

func (m *MemoryStore) Create(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = cloneTrip(t)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrip(t), nil
}

func (m *MemoryStore) Update(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.ID]; !ok {
		return ErrNotFound
	}
	m.trips[t.ID] = cloneTrip(t)
	return nil
}

func (m *MemoryStore) SetStatusIf(ctx context.Context, id string, from, to models.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from {
		return ErrConflict
	}
	t.Status = to
	stampStatus(t, to, at)
	return nil
}

func stampStatus(t *models.Trip, to models.Status, at time.Time) {
	switch to {
	case models.StatusEnroute:
		if t.StartedAt == nil {
			ts := at
			t.StartedAt = &ts
		}
	case models.StatusCompleted:
		ts := at
		t.CompletedAt = &ts
	case models.StatusCancelled:
		ts := at
		t.CancelledAt = &ts
	}
}

func (m *MemoryStore) AttachVehicle(ctx context.Context, id, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.VehicleID = vehicleID
	return nil
}

func (m *MemoryStore) SetEstimate(ctx context.Context, id string, estimate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.Estimate = estimate
	return nil
}

func (m *MemoryStore) AppendPathPoint(ctx context.Context, id string, p models.PathPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	t.Path = append(t.Path, p)
	return nil
}

func (m *MemoryStore) SetFinalFare(ctx context.Context, id string, f models.FareSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return ErrNotFound
	}
	snap := f
	t.Fare = &snap
	return nil
}

func (m *MemoryStore) ActiveTripForVehicle(ctx context.Context, vehicleID string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.Trip
	for _, t := range m.trips {
		if t.VehicleID != vehicleID {
			continue
		}
		if t.Status != models.StatusAccepted && t.Status != models.StatusEnroute {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneTrip(latest), nil
}

func (m *MemoryStore) PendingCreatedSince(ctx context.Context, since time.Time) ([]*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trip
	for _, t := range m.trips {
		if t.Status != models.StatusPending && t.Status != models.StatusPaymentPending {
			continue
		}
		if t.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneTrip(t))
	}
	return out, nil
}

func (m *MemoryStore) CompletedForVehicle(ctx context.Context, vehicleID string) ([]*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Trip
	for _, t := range m.trips {
		if t.VehicleID == vehicleID && t.Status == models.StatusCompleted {
			out = append(out, cloneTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
