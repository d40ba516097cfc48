package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wattsync/wattsync/internal/source"
)

func startedController(t *testing.T, src *fakeSource, ts *fakeTS, app *fakeApp) *Controller {
	t.Helper()
	c := newTestController(src, ts, app)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c
}

func hourBuckets(start time.Time, n int) []source.StatBucket {
	out := make([]source.StatBucket, n)
	for i := range out {
		sum := float64(i)
		out[i] = source.StatBucket{Start: start.Add(time.Duration(i) * time.Hour), Sum: &sum}
	}
	return out
}

func TestPerformBackfillFromWatermark(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	wm := now.Add(-2 * time.Hour)
	src := &fakeSource{stats: map[string][]source.StatBucket{
		"sensor.grid_energy": hourBuckets(wm, 2),
	}}
	ts := &fakeTS{hasStats: true, watermarks: map[string]time.Time{"sensor.grid_energy": wm}}
	app := newFakeApp()
	app.entities["sensor.grid_energy"] = trackedEntity("sensor.grid_energy")

	c := startedController(t, src, ts, app)
	c.clock = func() time.Time { return now }

	if err := c.PerformBackfill(context.Background(), TriggerHourly); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	src.mu.Lock()
	starts := append([]time.Time(nil), src.statsStarts...)
	ends := append([]time.Time(nil), src.statsEnds...)
	src.mu.Unlock()
	if len(starts) != 1 || !starts[0].Equal(wm) {
		t.Fatalf("fetch window start = %v, want watermark %v", starts, wm)
	}
	if !ends[0].Equal(now) {
		t.Fatalf("fetch window end = %v, want %v", ends[0], now)
	}

	if got := ts.storedStats(); len(got) != 2 {
		t.Fatalf("stored %d statistics, want 2", len(got))
	}

	entries := app.syncEntries()
	if len(entries) != 1 {
		t.Fatalf("sync log has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if !e.Success || e.RecordsSynced != 2 || e.Trigger != "hourly" || e.Period != "hour" {
		t.Fatalf("unexpected sync entry: %+v", e)
	}
	if e.StartTime == nil || !e.StartTime.Equal(wm) {
		t.Fatalf("entry start = %v", e.StartTime)
	}
}

func TestPerformBackfillDefaultWindow(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	ts := &fakeTS{hasStats: true}
	app := newFakeApp()
	app.entities["sensor.new_meter"] = trackedEntity("sensor.new_meter")

	c := startedController(t, src, ts, app)
	c.clock = func() time.Time { return now }

	if err := c.PerformBackfill(context.Background(), TriggerManual); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	src.mu.Lock()
	start := src.statsStarts[0]
	src.mu.Unlock()
	want := now.Add(-c.cfg.BackfillWindow)
	if !start.Equal(want) {
		t.Fatalf("window start = %v, want %v", start, want)
	}

	entries := app.syncEntries()
	if len(entries) != 1 || !entries[0].Success || entries[0].RecordsSynced != 0 {
		t.Fatalf("unexpected sync entry: %+v", entries)
	}
}

func TestPerformBackfillEntityIsolation(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		stats: map[string][]source.StatBucket{
			"sensor.a": hourBuckets(now.Add(-3*time.Hour), 3),
		},
		statsErr: map[string]error{"sensor.b": errors.New("upstream 500")},
	}
	ts := &fakeTS{hasStats: true}
	app := newFakeApp()
	app.entities["sensor.a"] = trackedEntity("sensor.a")
	app.entities["sensor.b"] = trackedEntity("sensor.b")

	c := startedController(t, src, ts, app)
	c.clock = func() time.Time { return now }

	err := c.PerformBackfill(context.Background(), TriggerHourly)
	if err == nil {
		t.Fatal("expected error for partial failure")
	}

	// The healthy entity's data still lands.
	if got := ts.storedStats(); len(got) != 3 {
		t.Fatalf("stored %d statistics, want 3", len(got))
	}
	entries := app.syncEntries()
	if len(entries) != 1 {
		t.Fatalf("sync log has %d entries", len(entries))
	}
	e := entries[0]
	if e.Success {
		t.Fatal("partial failure logged as success")
	}
	if e.RecordsSynced != 3 {
		t.Fatalf("records synced = %d, want 3", e.RecordsSynced)
	}
	if e.Error == "" {
		t.Fatal("entry error empty")
	}
}

func TestPerformBackfillWriteFailure(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{stats: map[string][]source.StatBucket{
		"sensor.a": hourBuckets(now.Add(-time.Hour), 1),
	}}
	ts := &fakeTS{hasStats: true, writeStatsErr: errors.New("connection refused")}
	app := newFakeApp()
	app.entities["sensor.a"] = trackedEntity("sensor.a")

	c := startedController(t, src, ts, app)
	c.clock = func() time.Time { return now }

	if err := c.PerformBackfill(context.Background(), TriggerHourly); err == nil {
		t.Fatal("expected write error")
	}
	entries := app.syncEntries()
	if len(entries) != 1 {
		t.Fatalf("sync log has %d entries", len(entries))
	}
	if entries[0].Success || entries[0].RecordsSynced != 0 || entries[0].Error == "" {
		t.Fatalf("unexpected entry after write failure: %+v", entries[0])
	}
}

func TestConcurrentBackfillsSerialize(t *testing.T) {
	src := &fakeSource{}
	ts := &fakeTS{hasStats: true}
	app := newFakeApp()
	app.entities["sensor.a"] = trackedEntity("sensor.a")

	c := startedController(t, src, ts, app)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.PerformBackfill(context.Background(), TriggerHourly)
	}()
	go func() {
		defer wg.Done()
		_ = c.TriggerBackfill(context.Background())
	}()
	wg.Wait()

	// Both attempts ran to completion, one after the other.
	entries := app.syncEntries()
	if len(entries) != 2 {
		t.Fatalf("sync log has %d entries, want 2", len(entries))
	}
	triggers := map[string]bool{entries[0].Trigger: true, entries[1].Trigger: true}
	if !triggers["hourly"] || !triggers["manual"] {
		t.Fatalf("unexpected triggers: %+v", triggers)
	}
}
