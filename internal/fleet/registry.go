package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/trip-coordinator/internal/geo"
	"github.com/example/trip-coordinator/internal/models"
)

// ErrNotFound is returned when a vehicle id is unknown.
var ErrNotFound = errors.New("vehicle not found")

// Query narrows the eligible vehicle set for dispatch and surge supply
// counting. RadiusKm of zero means unbounded.
type Query struct {
	Class    string
	Exclude  []string
	Near     models.Coord
	RadiusKm float64
}

// Registry is the fleet collaborator: vehicle availability, class and
// location, readable by id or by geographic query.
type Registry interface {
	ByID(ctx context.Context, id string) (*models.Vehicle, error)
	Put(ctx context.Context, v models.Vehicle) error
	UpdateLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error
	SetAvailability(ctx context.Context, id string, available bool) error
	// Eligible returns available vehicles with a known location matching the
	// query, ordered nearest first.
	Eligible(ctx context.Context, q Query) ([]models.Vehicle, error)
}

// MemoryRegistry keeps the fleet in a map, for local runs and tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	vehicles map[string]*models.Vehicle
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{vehicles: make(map[string]*models.Vehicle)}
}

func cloneVehicle(v *models.Vehicle) *models.Vehicle {
	c := *v
	if v.Loc != nil {
		loc := *v.Loc
		c.Loc = &loc
	}
	if v.Rate != nil {
		r := *v.Rate
		c.Rate = &r
	}
	return &c
}

func (m *MemoryRegistry) ByID(ctx context.Context, id string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneVehicle(v), nil
}

func (m *MemoryRegistry) Put(ctx context.Context, v models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.Class == "" {
		v.Class = models.ClassNormal
	}
	m.vehicles[v.ID] = cloneVehicle(&v)
	return nil
}

func (m *MemoryRegistry) UpdateLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	l := loc
	v.Loc = &l
	v.Updated = at
	return nil
}

func (m *MemoryRegistry) SetAvailability(ctx context.Context, id string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Available = available
	return nil
}

func (m *MemoryRegistry) Eligible(ctx context.Context, q Query) ([]models.Vehicle, error) {
	excluded := make(map[string]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}

	m.mu.RLock()
	type scored struct {
		v    models.Vehicle
		dist float64
	}
	arr := make([]scored, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		if !v.Available || v.Loc == nil {
			continue
		}
		if q.Class != "" && v.Class != q.Class {
			continue
		}
		if _, skip := excluded[v.ID]; skip {
			continue
		}
		dist := geo.HaversineKm(*v.Loc, q.Near)
		if q.RadiusKm > 0 && dist > q.RadiusKm {
			continue
		}
		arr = append(arr, scored{v: *cloneVehicle(v), dist: dist})
	}
	m.mu.RUnlock()

	// stable ordering so distance ties resolve deterministically
	sort.SliceStable(arr, func(i, j int) bool {
		if arr[i].dist != arr[j].dist {
			return arr[i].dist < arr[j].dist
		}
		return arr[i].v.ID < arr[j].v.ID
	})
	out := make([]models.Vehicle, 0, len(arr))
	for _, s := range arr {
		out = append(out, s.v)
	}
	return out, nil
}
