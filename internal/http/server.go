// Package httpapi exposes the coordinator over HTTP and websockets: trip
// lifecycle endpoints for riders and vehicle operators, the raw fix ingest
// hook, live tracking sockets, quotes, and operational endpoints.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-coordinator/internal/dispatch"
	"github.com/example/trip-coordinator/internal/fare"
	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geofence"
	"github.com/example/trip-coordinator/internal/ingest"
	"github.com/example/trip-coordinator/internal/path"
	"github.com/example/trip-coordinator/internal/relay"
	"github.com/example/trip-coordinator/internal/storage"
	"github.com/example/trip-coordinator/internal/stream"
	"github.com/example/trip-coordinator/internal/trip"
)

// Deps bundles the collaborators the server routes to. Kafka is optional;
// when nil, fixes go straight into the relay.
type Deps struct {
	Logger      *slog.Logger
	Store       storage.TripStore
	Fleet       fleet.Registry
	Machine     *trip.Machine
	Coordinator *dispatch.Coordinator
	Fare        *fare.Calculator
	Relay       *relay.Relay
	Hub         *stream.Hub
	Heartbeats  *relay.HeartbeatRegistry
	WSReg       *dispatch.WSRegistry
	Kafka       *ingest.KafkaProducer
	Capture     *path.Capture
	Fence       *geofence.Detector

	TripTTL       time.Duration
	QuoteRadiusKm float64
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router
	clock  func() time.Time
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: d, logger: logger, mux: mux.NewRouter(), clock: time.Now}
	s.registerMiddleware()
	s.routes()
	return s
}

// SetClock overrides the time source for tests.
func (s *Server) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/vehicle/locations", s.handleVehicleFix).Methods("POST")

	s.mux.HandleFunc("/api/v1/vehicles", s.handleVehicleUpsert).Methods("POST")
	s.mux.HandleFunc("/api/v1/vehicles/{vehicle_id}/availability", s.handleVehicleAvailability).Methods("POST")
	s.mux.HandleFunc("/api/v1/vehicles/{vehicle_id}/location", s.handleVehicleLocation).Methods("GET")
	s.mux.HandleFunc("/api/v1/vehicles/{vehicle_id}/stats", s.handleVehicleStats).Methods("GET")

	s.mux.HandleFunc("/api/v1/quotes", s.handleQuotes).Methods("GET")

	s.mux.HandleFunc("/api/v1/trips", s.handleTripCreate).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}", s.handleTripGet).Methods("GET")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/payment-confirmed", s.handlePaymentConfirmed).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/decline", s.handleDecline).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/arrived", s.handleArrived).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/start", s.handleStart).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/picked", s.handlePicked).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/finish", s.handleFinish).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{trip_id}/cancel", s.handleCancel).Methods("POST")

	s.mux.HandleFunc("/ws/vehicles/{vehicle_id}", s.handleVehicleWS)
	s.mux.HandleFunc("/ws/vehicles/{vehicle_id}/track", s.handleVehicleTrackWS)
	s.mux.HandleFunc("/ws/trips/{trip_id}/track", s.handleTripTrackWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
