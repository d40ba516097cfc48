package recorder

import (
	"strconv"
	"strings"
	"time"

	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
)

// Units accepted as energy-domain alongside the energy/power device classes.
var energyUnits = map[string]struct{}{
	"Wh": {}, "kWh": {}, "MWh": {},
	"W": {}, "kW": {}, "MW": {},
	"GJ": {}, "m³": {}, "ft³": {},
}

// State sentinels the hub reports for entities without a usable value.
const (
	stateUnknown     = "unknown"
	stateUnavailable = "unavailable"
)

func isEnergyEntity(deviceClass, unit string) bool {
	switch strings.ToLower(deviceClass) {
	case "energy", "power":
		return true
	}
	_, ok := energyUnits[unit]
	return ok
}

// parseStateValue parses the raw state payload, rejecting sentinels.
func parseStateValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == stateUnknown || s == stateUnavailable {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readingFromChange converts a live state change into a Reading.
// A non-empty discard reason means the event is silently dropped.
func readingFromChange(sc source.StateChange) (timeseries.Reading, string) {
	if sc.EntityID == "" || sc.NewState == nil {
		return timeseries.Reading{}, "incomplete"
	}
	if !isEnergyEntity(sc.NewState.DeviceClass, sc.NewState.Unit) {
		return timeseries.Reading{}, "non_energy"
	}
	state, ok := parseStateValue(sc.NewState.Value)
	if !ok {
		return timeseries.Reading{}, "non_numeric"
	}
	r := timeseries.Reading{
		EntityID:   sc.EntityID,
		State:      state,
		Attributes: sc.NewState.Attributes,
	}
	if sc.OldState != nil {
		if prev, ok := parseStateValue(sc.OldState.Value); ok {
			r.PreviousState = &prev
		}
	}
	ts := sc.NewState.LastChanged
	if ts.IsZero() {
		ts = time.Now()
	}
	r.Timestamp = ts.UnixNano()
	return r, ""
}

// statisticFromBucket converts one upstream aggregation bucket.
func statisticFromBucket(entityID string, period timeseries.Period, b source.StatBucket) timeseries.Statistic {
	return timeseries.Statistic{
		EntityID:  entityID,
		Period:    period,
		State:     b.State,
		Sum:       b.Sum,
		Mean:      b.Mean,
		Min:       b.Min,
		Max:       b.Max,
		Timestamp: b.Start.UnixNano(),
	}
}
