package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FixesIngested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "fixes_ingested_total", Help: "Position fixes accepted by the relay"})
	FixesInvalid  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "fixes_invalid_total", Help: "Position fixes dropped at the boundary"})

	OffersTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "dispatch_offers_total", Help: "Dispatch offers issued"})
	MatchesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "dispatch_matches_total", Help: "Offers accepted by a vehicle"})
	DispatchExhausted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "dispatch_exhausted_total", Help: "Dispatch cycles ending with no eligible vehicle"})

	HeartbeatsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_coordinator", Name: "heartbeats_active", Help: "Vehicles with a live rebroadcast timer"})
	ArrivalsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "geofence_arrivals_total", Help: "Arrival geofence events raised"})

	PathPointsAdmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "path_points_admitted_total", Help: "Breadcrumb points admitted past the admission gate"})
	PathPointsSkipped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "path_points_skipped_total", Help: "Breadcrumb points below both admission thresholds"})

	FaresComputed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "fares_computed_total", Help: "Final fares computed at completion"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_coordinator", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_coordinator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
