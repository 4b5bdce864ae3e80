package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/trip-coordinator/internal/bus"
	"github.com/example/trip-coordinator/internal/config"
	"github.com/example/trip-coordinator/internal/dispatch"
	"github.com/example/trip-coordinator/internal/fare"
	"github.com/example/trip-coordinator/internal/fleet"
	"github.com/example/trip-coordinator/internal/geofence"
	httpapi "github.com/example/trip-coordinator/internal/http"
	"github.com/example/trip-coordinator/internal/ingest"
	"github.com/example/trip-coordinator/internal/logging"
	"github.com/example/trip-coordinator/internal/path"
	"github.com/example/trip-coordinator/internal/payments"
	"github.com/example/trip-coordinator/internal/relay"
	"github.com/example/trip-coordinator/internal/routing"
	"github.com/example/trip-coordinator/internal/storage"
	"github.com/example/trip-coordinator/internal/stream"
	"github.com/example/trip-coordinator/internal/surge"
	"github.com/example/trip-coordinator/internal/trip"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var store storage.TripStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	var reg fleet.Registry
	if cfg.RedisAddr != "" {
		reg = fleet.NewRedisRegistry(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		reg = fleet.NewMemoryRegistry()
	}

	var router routing.Provider
	if cfg.OSRMBaseURL != "" {
		router = routing.NewCache(routing.NewOSRMClient(cfg.OSRMBaseURL), cfg.RouteCacheTTL)
	}

	eventBus := bus.New(logging.ForComponent(logger, "bus"))

	surgeEst := &surge.Estimator{
		Fleet:    reg,
		Trips:    store,
		RadiusKm: cfg.SurgeRadiusKm,
		Window:   cfg.SurgeWindow,
		Min:      cfg.SurgeMin,
		Max:      cfg.SurgeMax,
	}
	fareCalc := &fare.Calculator{Routing: router, Surge: surgeEst, WaitPerMin: cfg.WaitFeePerMin}
	machine := &trip.Machine{Store: store, Bus: eventBus}

	hub := stream.NewHub(logging.ForComponent(logger, "stream"))
	wsreg := dispatch.NewWSRegistry()
	var notifier dispatch.VehicleNotifier = wsreg
	if endpoint := os.Getenv("PUSH_ENDPOINT"); endpoint != "" {
		notifier = dispatch.NewPushNotifier(endpoint, os.Getenv("PUSH_KEY"), wsreg)
	}

	coordinator := &dispatch.Coordinator{
		Registry: reg,
		Store:    store,
		Machine:  machine,
		Fare:     fareCalc,
		Vehicles: notifier,
		Rider:    hub,
		Bus:      eventBus,
		RadiusKm: cfg.DispatchRadiusKm,
		Logger:   logging.ForComponent(logger, "dispatch"),
	}

	heartbeats := relay.NewHeartbeatRegistry(cfg.HeartbeatInterval, cfg.HeartbeatStaleness)
	capture := path.NewCapture(store, logging.ForComponent(logger, "path"))
	fence := geofence.NewDetector(eventBus)
	rel := &relay.Relay{
		Heartbeats: heartbeats,
		Registry:   reg,
		Store:      store,
		Capture:    capture,
		Fence:      fence,
		Out:        hub,
		Logger:     logging.ForComponent(logger, "relay"),
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	if os.Getenv("STRIPE_API_KEY") != "" {
		bridge := &payments.Bridge{
			Gateway: payments.NewStripeClient(cfg.Currency),
			Store:   store,
			Logger:  logging.ForComponent(logger, "payments"),
		}
		bridge.Attach(eventBus)
	}

	wireLifecycleEvents(eventBus, hub, machine)

	srv := httpapi.NewServer(httpapi.Deps{
		Logger:        logging.ForComponent(logger, "http"),
		Store:         store,
		Fleet:         reg,
		Machine:       machine,
		Coordinator:   coordinator,
		Fare:          fareCalc,
		Relay:         rel,
		Hub:           hub,
		Heartbeats:    heartbeats,
		WSReg:         wsreg,
		Kafka:         producer,
		Capture:       capture,
		Fence:         fence,
		TripTTL:       cfg.TripTTL,
		QuoteRadiusKm: cfg.DispatchRadiusKm,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("trip coordinator listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

// wireLifecycleEvents forwards bus events to trip observers and applies the
// side effects that belong to no single handler: the arrival timestamp and
// the terminal channel close.
func wireLifecycleEvents(eb *bus.Bus, hub *stream.Hub, machine *trip.Machine) {
	eb.Subscribe(bus.TripAssigned, func(e bus.Event) {
		ev := e.(bus.AssignedEvent)
		hub.TripEvent(ev.TripID, "assigned", map[string]interface{}{
			"vehicle_id": ev.VehicleID, "estimate": ev.Estimate,
		})
	})
	eb.Subscribe(bus.TripAccepted, func(e bus.Event) {
		ev := e.(bus.AcceptedEvent)
		hub.TripEvent(ev.TripID, "accepted", map[string]interface{}{"vehicle_id": ev.VehicleID})
	})
	eb.Subscribe(bus.VehicleArrived, func(e bus.Event) {
		ev := e.(bus.ArrivedEvent)
		hub.TripEvent(ev.TripID, "arrived", map[string]interface{}{"vehicle_id": ev.VehicleID})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = machine.MarkArrived(ctx, ev.TripID)
	})
	eb.Subscribe(bus.TripStarted, func(e bus.Event) {
		hub.TripEvent(e.Trip(), "started", nil)
	})
	eb.Subscribe(bus.TripPicked, func(e bus.Event) {
		hub.TripEvent(e.Trip(), "picked", nil)
	})
	eb.Subscribe(bus.TripCompleted, func(e bus.Event) {
		ev := e.(bus.CompletedEvent)
		hub.TripEvent(ev.TripID, "completed", map[string]interface{}{
			"price": ev.Price, "distance_km": ev.DistanceKm, "payment_method": ev.PaymentMethod,
		})
		hub.CloseTrip(ev.TripID)
	})
	eb.Subscribe(bus.TripCancelled, func(e bus.Event) {
		ev := e.(bus.CancelledEvent)
		hub.TripEvent(ev.TripID, "cancelled", map[string]interface{}{
			"by": ev.By, "reason": ev.Reason,
		})
		hub.CloseTrip(ev.TripID)
	})
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open failed", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_trips.sql"))
	if err != nil {
		logger.Error("migration file unreadable", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec failed", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_trips.sql")
}
