package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the coordinator HTTP
// process. Values are primarily loaded from environment variables with sane
// defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	OSRMBaseURL   string
	RouteCacheTTL time.Duration

	DispatchRadiusKm float64

	SurgeRadiusKm float64
	SurgeWindow   time.Duration
	SurgeMin      float64
	SurgeMax      float64

	HeartbeatInterval  time.Duration
	HeartbeatStaleness time.Duration

	TripTTL       time.Duration
	WaitFeePerMin float64

	Currency string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "vehicles_geo",
		KafkaTopic:         "vehicle-fixes",
		RouteCacheTTL:      30 * time.Second,
		DispatchRadiusKm:   10,
		SurgeRadiusKm:      8,
		SurgeWindow:        15 * time.Minute,
		SurgeMin:           1.0,
		SurgeMax:           2.0,
		HeartbeatInterval:  time.Second,
		HeartbeatStaleness: 2 * time.Minute,
		TripTTL:            24 * time.Hour,
		Currency:           "zar",
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.OSRMBaseURL = strings.TrimSpace(os.Getenv("OSRM_BASE_URL"))
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	setFloatFromEnv(&cfg.DispatchRadiusKm, "DISPATCH_RADIUS_KM", &errs)

	setFloatFromEnv(&cfg.SurgeRadiusKm, "SURGE_RADIUS_KM", &errs)
	setDurationFromEnv(&cfg.SurgeWindow, "SURGE_WINDOW", &errs)
	setFloatFromEnv(&cfg.SurgeMin, "SURGE_MIN", &errs)
	setFloatFromEnv(&cfg.SurgeMax, "SURGE_MAX", &errs)

	setDurationFromEnv(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL", &errs)
	setDurationFromEnv(&cfg.HeartbeatStaleness, "HEARTBEAT_STALENESS", &errs)

	setDurationFromEnv(&cfg.TripTTL, "TRIP_TTL", &errs)
	setFloatFromEnv(&cfg.WaitFeePerMin, "WAIT_FEE_PER_MIN", &errs)

	setStringFromEnv(&cfg.Currency, "CURRENCY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DispatchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_KM must be > 0"))
	}
	if cfg.SurgeMin > cfg.SurgeMax {
		errs = append(errs, fmt.Errorf("SURGE_MIN must not exceed SURGE_MAX"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
