package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trip-coordinator/internal/models"
)

// ErrNoSession is returned when the target vehicle has no live connection.
var ErrNoSession = errors.New("no websocket session for vehicle")

// WSSession is one connected vehicle app. Writes are serialized per socket.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(offer models.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(offer)
}

// WSRegistry delivers offers over live vehicle websocket sessions. It is the
// default VehicleNotifier.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(vehicleID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[vehicleID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[vehicleID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(vehicleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[vehicleID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, vehicleID)
	}
}

func (r *WSRegistry) Offer(ctx context.Context, vehicleID string, offer models.Offer) error {
	r.mu.RLock()
	s, ok := r.sessions[vehicleID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(offer)
}
