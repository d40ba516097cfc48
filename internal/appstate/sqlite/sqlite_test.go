package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/wattsync/wattsync/internal/appstate"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}

func TestUpsertAndListEntities(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	e := appstate.TrackedEntity{EntityID: "sensor.meter", Name: "Meter", Unit: "kWh", DeviceClass: "energy", Tracked: true}
	if err := db.UpsertEntity(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Second upsert updates in place.
	e.Name = "Main Meter"
	if err := db.UpsertEntity(ctx, e); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if err := db.UpsertEntity(ctx, appstate.TrackedEntity{EntityID: "sensor.other", Tracked: false}); err != nil {
		t.Fatalf("upsert untracked: %v", err)
	}

	all, err := db.Entities(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(all))
	}
	tracked, err := db.Entities(ctx, true)
	if err != nil {
		t.Fatalf("list tracked: %v", err)
	}
	if len(tracked) != 1 || tracked[0].EntityID != "sensor.meter" || tracked[0].Name != "Main Meter" {
		t.Fatalf("unexpected tracked set: %+v", tracked)
	}
}

func TestIncrementEventCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.UpsertEntity(ctx, appstate.TrackedEntity{EntityID: "sensor.meter", Tracked: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	ok, err := db.IncrementEventCount(ctx, "sensor.meter")
	if err != nil || !ok {
		t.Fatalf("increment: ok=%v err=%v", ok, err)
	}
	ok, err = db.IncrementEventCount(ctx, "sensor.unknown")
	if err != nil {
		t.Fatalf("increment unknown: %v", err)
	}
	if ok {
		t.Fatalf("expected false for unknown entity")
	}

	ents, err := db.Entities(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ents[0].EventCount != 1 {
		t.Fatalf("expected event_count=1, got %d", ents[0].EventCount)
	}
}

func TestSyncLogAndRetention(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.EnsureRetention(ctx, time.Hour); err != nil {
		t.Fatalf("ensure retention: %v", err)
	}

	old := appstate.SyncLogEntry{
		EntityIDs: []string{"sensor.meter"}, RecordsSynced: 3, Period: "hour",
		Trigger: "hourly", Success: true, CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := db.LogSync(ctx, old); err != nil {
		t.Fatalf("log old: %v", err)
	}
	start := time.Now().UTC().Add(-30 * time.Minute)
	fresh := appstate.SyncLogEntry{
		EntityIDs: []string{"sensor.meter", "sensor.other"}, RecordsSynced: 7,
		StartTime: &start, Period: "hour", Trigger: "manual", DurationMs: 120,
		Success: false, Error: "upstream timeout",
	}
	if err := db.LogSync(ctx, fresh); err != nil {
		t.Fatalf("log fresh: %v", err)
	}

	got, err := db.RecentSyncs(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	// The old entry is beyond the 1h window and pruned on insert.
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(got))
	}
	e := got[0]
	if e.Trigger != "manual" || e.RecordsSynced != 7 || e.Success || e.Error != "upstream timeout" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if len(e.EntityIDs) != 2 || e.StartTime == nil || e.EndTime != nil {
		t.Fatalf("unexpected entry fields: %+v", e)
	}
}

func TestSubscriptionStateSingleton(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	st, err := db.SubscriptionState(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Active {
		t.Fatalf("expected inactive before any subscribe")
	}

	if err := db.SetSubscriptionActive(ctx, true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	st, err = db.SubscriptionState(ctx)
	if err != nil || !st.Active || st.SubscribedAt == nil {
		t.Fatalf("expected active with subscribed_at, got %+v err=%v", st, err)
	}
	subscribedAt := *st.SubscribedAt

	if err := db.SetSubscriptionActive(ctx, false); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	st, err = db.SubscriptionState(ctx)
	if err != nil || st.Active {
		t.Fatalf("expected inactive, got %+v err=%v", st, err)
	}
	// subscribed_at survives deactivation.
	if st.SubscribedAt == nil || !st.SubscribedAt.Equal(subscribedAt) {
		t.Fatalf("expected subscribed_at preserved, got %+v", st.SubscribedAt)
	}
}
