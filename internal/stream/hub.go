// Package stream fans live position updates out to websocket observers.
// Channels are partitioned per trip and per vehicle so a subscriber only
// sees the data it asked for.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/trip-coordinator/internal/models"
)

const sendBuffer = 16

// Client is one observer connection subscribed to a single channel.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a message without blocking; a full queue drops the update.
func (c *Client) trySend(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump drains the send queue onto the socket.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Hub tracks subscriptions per channel key. Slow observers drop messages
// rather than stalling the relay.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, subs: make(map[string]map[*Client]struct{})}
}

func tripChannel(id string) string    { return "trip:" + id }
func vehicleChannel(id string) string { return "vehicle:" + id }

// SubscribeTrip attaches the connection to a trip's position channel.
func (h *Hub) SubscribeTrip(tripID string, conn *websocket.Conn) *Client {
	return h.subscribe(tripChannel(tripID), conn)
}

// SubscribeVehicle attaches the connection to a vehicle's position channel,
// usable independent of any trip.
func (h *Hub) SubscribeVehicle(vehicleID string, conn *websocket.Conn) *Client {
	return h.subscribe(vehicleChannel(vehicleID), conn)
}

func (h *Hub) subscribe(channel string, conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.subs[channel] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Debug("observer subscribed", "channel", channel)
	}

	go c.writePump()
	// reader goroutine notices the peer going away and unsubscribes
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unsubscribe(channel, c)
				return
			}
		}
	}()
	return c
}

func (h *Hub) unsubscribe(channel string, c *Client) {
	h.mu.Lock()
	if set, ok := h.subs[channel]; ok {
		if _, member := set[c]; member {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, channel)
			}
		}
	}
	h.mu.Unlock()
	c.close()
	if h.logger != nil {
		h.logger.Debug("observer gone", "channel", channel)
	}
}

// CloseTrip closes the trip channel for new data once the trip is terminal.
// Messages already queued still drain.
func (h *Hub) CloseTrip(tripID string) {
	channel := tripChannel(tripID)
	h.mu.Lock()
	set := h.subs[channel]
	delete(h.subs, channel)
	h.mu.Unlock()
	for c := range set {
		c.close()
	}
}

func (h *Hub) publish(channel string, v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	set := h.subs[channel]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(msg)
	}
}

// VehiclePosition implements relay.Broadcaster.
func (h *Hub) VehiclePosition(vehicleID string, at models.Position) {
	h.publish(vehicleChannel(vehicleID), at)
}

// TripPosition implements relay.Broadcaster.
func (h *Hub) TripPosition(tripID string, at models.Position) {
	h.publish(tripChannel(tripID), at)
}

// NoVehicleAvailable tells trip observers that a matching cycle exhausted
// the eligible pool. Implements the dispatch rider notifier.
func (h *Hub) NoVehicleAvailable(ctx context.Context, tripID string) {
	h.TripEvent(tripID, "no_vehicle", nil)
}

// TripEvent pushes a lifecycle notification to trip observers.
func (h *Hub) TripEvent(tripID, event string, payload interface{}) {
	h.publish(tripChannel(tripID), map[string]interface{}{
		"event":   event,
		"trip_id": tripID,
		"data":    payload,
	})
}
