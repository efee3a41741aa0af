// Package metrics exposes Prometheus collectors for goldwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goldwatch"

// Evaluator metrics
var (
	// TicksTotal counts completed evaluation ticks.
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "ticks_total",
			Help:      "Total evaluation ticks executed",
		},
	)

	// TicksSkipped counts ticks skipped because no spot price was available.
	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "ticks_skipped_total",
			Help:      "Evaluation ticks skipped due to unavailable spot price",
		},
	)

	// AlertsTriggered counts alerts whose conditional update succeeded.
	AlertsTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "alerts_triggered_total",
			Help:      "Alerts transitioned to triggered",
		},
	)

	// AlertEvalErrors counts per-alert evaluation failures that were isolated.
	AlertEvalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "alert_errors_total",
			Help:      "Per-alert evaluation errors caught and skipped",
		},
	)

	// NotificationFailures counts failed notification deliveries.
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "notification_failures_total",
			Help:      "Notification deliveries that failed after trigger",
		},
	)
)

// Forecast metrics
var (
	// ForecastCacheHits counts forecast cache hits.
	ForecastCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "cache_hits_total",
			Help:      "Forecast cache hits",
		},
	)

	// ForecastCacheMisses counts forecast cache misses.
	ForecastCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "cache_misses_total",
			Help:      "Forecast cache misses",
		},
	)

	// ForecastDegraded counts forecasts served by the fallback generator.
	ForecastDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "degraded_total",
			Help:      "Forecasts served from the degraded fallback generator",
		},
	)

	// ForecastRemoteFailures counts failed remote forecaster calls.
	ForecastRemoteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "remote_failures_total",
			Help:      "Remote forecaster calls that failed",
		},
	)
)

// Breaker metrics
var (
	// BreakerState publishes the current state per upstream
	// (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
		},
		[]string{"upstream"},
	)

	// BreakerRejections counts fail-fast rejections per upstream.
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "rejections_total",
			Help:      "Calls rejected without contacting the upstream",
		},
		[]string{"upstream"},
	)
)

// Pricing metrics
var (
	// SpotFallbackLevel records the fallback depth of the last spot fetch.
	SpotFallbackLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "spot_fallback_level",
			Help:      "Fallback chain depth used by the most recent spot price fetch",
		},
	)

	// SpotSourceErrors counts failures per spot price source.
	SpotSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "source_errors_total",
			Help:      "Spot price fetch failures per source",
		},
		[]string{"source"},
	)
)
