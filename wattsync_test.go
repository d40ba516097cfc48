package wattsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderFacadeLifecycle(t *testing.T) {
	dir := t.TempDir()
	ts, err := NewTimeSeriesStore(filepath.Join(dir, "ts.db"))
	if err != nil {
		t.Fatalf("open time-series store: %v", err)
	}
	defer func() { _ = ts.Close() }()
	app, err := NewAppStateStore(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open app-state store: %v", err)
	}
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	if err := ts.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := ts.WriteReadings(ctx, []Reading{{
		EntityID:  "sensor.grid_energy",
		State:     12.5,
		Timestamp: time.Now().UnixNano(),
	}}); err != nil {
		t.Fatalf("write reading: %v", err)
	}

	r := NewRecorder(RecorderConfig{}, nil, ts, app, nil)
	if r.Snapshot().Running {
		t.Fatal("recorder running before start")
	}
	if err := r.TriggerBackfill(ctx); err == nil {
		t.Fatal("expected error before start")
	}
}

func TestLoadConfigFacade(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}
