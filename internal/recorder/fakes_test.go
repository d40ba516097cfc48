package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/wattsync/wattsync/internal/appstate"
	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
)

type fakeSource struct {
	mu           sync.Mutex
	entities     []source.Entity
	discoverErr  error
	stats        map[string][]source.StatBucket
	statsErr     map[string]error
	statsCalls   [][]string
	statsStarts  []time.Time
	statsEnds    []time.Time
	handler      source.Handler
	subscribes   int
	subscribeErr error
	reconnects   int
	reconnectErr error
}

func (f *fakeSource) DiscoverEntities(ctx context.Context) ([]source.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return append([]source.Entity(nil), f.entities...), nil
}

func (f *fakeSource) Statistics(ctx context.Context, ids []string, start, end time.Time, period string) (map[string][]source.StatBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls = append(f.statsCalls, append([]string(nil), ids...))
	f.statsStarts = append(f.statsStarts, start)
	f.statsEnds = append(f.statsEnds, end)
	out := make(map[string][]source.StatBucket)
	for _, id := range ids {
		if err := f.statsErr[id]; err != nil {
			return nil, err
		}
		if bs, ok := f.stats[id]; ok {
			out[id] = bs
		}
	}
	return out, nil
}

func (f *fakeSource) Subscribe(ctx context.Context, h source.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribes++
	f.handler = h
	return nil
}

func (f *fakeSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *fakeSource) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return f.reconnectErr
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

type fakeTS struct {
	mu              sync.Mutex
	readings        []timeseries.Reading
	stats           []timeseries.Statistic
	watermarks      map[string]time.Time
	hasStats        bool
	hasStatsErr     error
	writeReadingErr error
	writeStatsErr   error
	writeStatsCalls int
}

func (f *fakeTS) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeTS) WriteReadings(ctx context.Context, rs []timeseries.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeReadingErr != nil {
		return f.writeReadingErr
	}
	f.readings = append(f.readings, rs...)
	return nil
}

func (f *fakeTS) WriteStats(ctx context.Context, ss []timeseries.Statistic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeStatsCalls++
	if f.writeStatsErr != nil {
		return f.writeStatsErr
	}
	f.stats = append(f.stats, ss...)
	return nil
}

func (f *fakeTS) LatestStatsTime(ctx context.Context, entityID string, period timeseries.Period) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.watermarks[entityID]
	return t, ok, nil
}

func (f *fakeTS) HasStats(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasStats, f.hasStatsErr
}

func (f *fakeTS) Close() error { return nil }

func (f *fakeTS) storedReadings() []timeseries.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timeseries.Reading(nil), f.readings...)
}

func (f *fakeTS) storedStats() []timeseries.Statistic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]timeseries.Statistic(nil), f.stats...)
}

type fakeApp struct {
	mu         sync.Mutex
	entities   map[string]appstate.TrackedEntity
	syncs      []appstate.SyncLogEntry
	increments map[string]int
	active     bool
	retention  time.Duration
	logSyncErr error
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		entities:   make(map[string]appstate.TrackedEntity),
		increments: make(map[string]int),
	}
}

func (f *fakeApp) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeApp) EnsureRetention(ctx context.Context, window time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retention = window
	return nil
}

func (f *fakeApp) Entities(ctx context.Context, onlyTracked bool) ([]appstate.TrackedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appstate.TrackedEntity
	for _, e := range f.entities {
		if onlyTracked && !e.Tracked {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeApp) UpsertEntity(ctx context.Context, e appstate.TrackedEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[e.EntityID] = e
	return nil
}

func (f *fakeApp) IncrementEventCount(ctx context.Context, entityID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entities[entityID]; !ok {
		return false, nil
	}
	f.increments[entityID]++
	return true, nil
}

func (f *fakeApp) LogSync(ctx context.Context, e appstate.SyncLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logSyncErr != nil {
		return f.logSyncErr
	}
	f.syncs = append(f.syncs, e)
	return nil
}

func (f *fakeApp) RecentSyncs(ctx context.Context, limit int) ([]appstate.SyncLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]appstate.SyncLogEntry(nil), f.syncs...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeApp) SetSubscriptionActive(ctx context.Context, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
	return nil
}

func (f *fakeApp) SubscriptionState(ctx context.Context) (appstate.SubscriptionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return appstate.SubscriptionState{Active: f.active}, nil
}

func (f *fakeApp) Close() error { return nil }

func (f *fakeApp) syncEntries() []appstate.SyncLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appstate.SyncLogEntry(nil), f.syncs...)
}
