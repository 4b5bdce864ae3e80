// Package bus is a small typed in-process publish/subscribe channel for trip
// lifecycle events. It keeps the dispatch, geofence and notification sides
// decoupled from one another.
package bus

import (
	"log/slog"
	"sync"
)

type Type string

const (
	TripAssigned   Type = "assigned"
	TripAccepted   Type = "accepted"
	VehicleArrived Type = "arrived"
	TripPicked     Type = "picked"
	TripStarted    Type = "started"
	TripCancelled  Type = "cancelled"
	TripCompleted  Type = "completed"
)

// Event is a typed lifecycle notification. Every event names its trip.
type Event interface {
	EventType() Type
	Trip() string
}

type AssignedEvent struct {
	TripID    string
	VehicleID string
	Estimate  int
}

func (e AssignedEvent) EventType() Type { return TripAssigned }
func (e AssignedEvent) Trip() string    { return e.TripID }

type AcceptedEvent struct {
	TripID    string
	VehicleID string
}

func (e AcceptedEvent) EventType() Type { return TripAccepted }
func (e AcceptedEvent) Trip() string    { return e.TripID }

type ArrivedEvent struct {
	TripID    string
	VehicleID string
}

func (e ArrivedEvent) EventType() Type { return VehicleArrived }
func (e ArrivedEvent) Trip() string    { return e.TripID }

type PickedEvent struct {
	TripID string
	By     string
}

func (e PickedEvent) EventType() Type { return TripPicked }
func (e PickedEvent) Trip() string    { return e.TripID }

type StartedEvent struct {
	TripID string
	By     string
}

func (e StartedEvent) EventType() Type { return TripStarted }
func (e StartedEvent) Trip() string    { return e.TripID }

type CancelledEvent struct {
	TripID string
	By     string
	Reason string
	Note   string
}

func (e CancelledEvent) EventType() Type { return TripCancelled }
func (e CancelledEvent) Trip() string    { return e.TripID }

type CompletedEvent struct {
	TripID        string
	Price         int
	DistanceKm    float64
	PaymentMethod string
}

func (e CompletedEvent) EventType() Type { return TripCompleted }
func (e CompletedEvent) Trip() string    { return e.TripID }

type Handler func(Event)

// Bus fans events out to subscribers. Delivery is fire-and-forget: each
// handler runs in its own goroutine and a panicking handler never breaks
// the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type][]Handler
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{subs: make(map[Type][]Handler), logger: logger}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.EventType()]
	b.mu.RUnlock()
	for _, h := range handlers {
		go b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil && b.logger != nil {
			b.logger.Error("event handler panic", "event", string(e.EventType()), "error", rec)
		}
	}()
	h(e)
}
