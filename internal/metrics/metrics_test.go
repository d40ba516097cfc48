package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	require.NoError(t, Register(prometheus.DefaultRegisterer))
}

func TestHelpersAfterRegister(t *testing.T) {
	require.NoError(t, RegisterDefault())

	IncEventIngested()
	IncEventDiscarded("non_numeric")
	IncError("write_reading")
	IncBackfillRun("manual", "success")
	ObserveBackfillDuration("manual", 0.25)
	AddRecordsSynced("manual", 12)
	SetTrackedEntities(3)
	IncHeartbeatRecovery()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	for _, want := range []string{
		"wattsync_recorder_events_total",
		"wattsync_recorder_backfill_runs_total",
		"wattsync_recorder_tracked_entities",
	} {
		assert.Contains(t, body, want)
	}
}
