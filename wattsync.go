package wattsync

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wattsync/wattsync/internal/appstate"
	appfactory "github.com/wattsync/wattsync/internal/appstate/factory"
	cfg "github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/recorder"
	iapi "github.com/wattsync/wattsync/internal/server"
	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
	tsfactory "github.com/wattsync/wattsync/internal/timeseries/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Reading = timeseries.Reading

type Statistic = timeseries.Statistic

type Period = timeseries.Period

const (
	PeriodHour = timeseries.PeriodHour
	PeriodDay  = timeseries.PeriodDay
)

type TrackedEntity = appstate.TrackedEntity

type SyncLogEntry = appstate.SyncLogEntry

type SubscriptionState = appstate.SubscriptionState

type Snapshot = recorder.Snapshot

type RecorderConfig = recorder.Config

type SourceConfig = source.Config

// Recorder is a thin facade over internal/recorder.Controller.
// It provides a stable public API for embedding.

type Recorder struct{ inner *recorder.Controller }

// NewRecorder wires a controller from the given stores and hub client.
func NewRecorder(rc RecorderConfig, src source.Client, ts timeseries.Store, app appstate.Store, logger *slog.Logger) *Recorder {
	return &Recorder{inner: recorder.New(rc, src, ts, app, logger)}
}

func (r *Recorder) Start(ctx context.Context) error           { return r.inner.Start(ctx) }
func (r *Recorder) Stop(ctx context.Context)                  { r.inner.Stop(ctx) }
func (r *Recorder) Snapshot() Snapshot                        { return r.inner.Snapshot() }
func (r *Recorder) TriggerBackfill(ctx context.Context) error { return r.inner.TriggerBackfill(ctx) }
func (r *Recorder) Reseed(ctx context.Context) error          { return r.inner.Reseed(ctx) }

// NewHubClient connects the recorder to a home-automation hub.
func NewHubClient(c SourceConfig, logger *slog.Logger) (source.Client, error) {
	return source.NewHubClient(c, logger)
}

// NewTimeSeriesStore opens a time-series store from a DSN
// (sqlite path or clickhouse:// URL).
func NewTimeSeriesStore(dsn string) (timeseries.Store, error) {
	return tsfactory.NewFromDSN(dsn)
}

// NewAppStateStore opens an application-state store from a DSN
// (sqlite path or postgres:// URL).
func NewAppStateStore(dsn string) (appstate.Store, error) {
	return appfactory.NewFromDSN(dsn)
}

func LoadConfig(path string) (*cfg.FileConfig, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the control API for the
// given recorder.
func NewHTTPServer(addr, basePath string, r *Recorder, app appstate.Store) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, r.inner, app)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }
