package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "events_total",
			Help:      "Number of live events accepted and written as readings.",
		},
	)
	eventsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "events_discarded_total",
			Help:      "Number of live events discarded before persistence.",
		}, []string{"reason"},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "errors_total",
			Help:      "Number of recoverable engine errors by operation.",
		}, []string{"operation"},
	)
	backfillRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "backfill_runs_total",
			Help:      "Number of backfill attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"},
	)
	backfillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "backfill_duration_seconds",
			Help:      "Observed duration of backfill attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"},
	)
	recordsSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "records_synced_total",
			Help:      "Number of statistic rows written by backfill and seeding.",
		}, []string{"trigger"},
	)
	trackedEntities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "tracked_entities",
			Help:      "Current size of the tracked entity set.",
		},
	)
	heartbeatRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wattsync",
			Subsystem: "recorder",
			Name:      "heartbeat_recoveries_total",
			Help:      "Number of stalled-stream recoveries triggered by the heartbeat.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		eventsIngested, eventsDiscarded, errorsTotal,
		backfillRuns, backfillDuration, recordsSynced,
		trackedEntities, heartbeatRecoveries,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncEventIngested() {
	if regOK.Load() {
		eventsIngested.Inc()
	}
}

func IncEventDiscarded(reason string) {
	if regOK.Load() {
		eventsDiscarded.WithLabelValues(reason).Inc()
	}
}

func IncError(operation string) {
	if regOK.Load() {
		errorsTotal.WithLabelValues(operation).Inc()
	}
}

func IncBackfillRun(trigger, outcome string) {
	if regOK.Load() {
		backfillRuns.WithLabelValues(trigger, outcome).Inc()
	}
}

func ObserveBackfillDuration(trigger string, seconds float64) {
	if regOK.Load() {
		backfillDuration.WithLabelValues(trigger).Observe(seconds)
	}
}

func AddRecordsSynced(trigger string, n int) {
	if regOK.Load() && n > 0 {
		recordsSynced.WithLabelValues(trigger).Add(float64(n))
	}
}

func SetTrackedEntities(n int) {
	if regOK.Load() {
		trackedEntities.Set(float64(n))
	}
}

func IncHeartbeatRecovery() {
	if regOK.Load() {
		heartbeatRecoveries.Inc()
	}
}
