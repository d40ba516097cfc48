package recorder

import (
	"testing"
	"time"

	"github.com/wattsync/wattsync/internal/source"
	"github.com/wattsync/wattsync/internal/timeseries"
)

func TestIsEnergyEntity(t *testing.T) {
	cases := []struct {
		deviceClass string
		unit        string
		want        bool
	}{
		{"energy", "", true},
		{"power", "", true},
		{"Energy", "", true},
		{"", "kWh", true},
		{"", "Wh", true},
		{"", "MWh", true},
		{"", "W", true},
		{"", "kW", true},
		{"", "MW", true},
		{"", "GJ", true},
		{"", "m³", true},
		{"", "ft³", true},
		{"temperature", "°C", false},
		{"", "", false},
		{"", "kwh", false},
	}
	for _, tc := range cases {
		if got := isEnergyEntity(tc.deviceClass, tc.unit); got != tc.want {
			t.Errorf("isEnergyEntity(%q, %q) = %v, want %v", tc.deviceClass, tc.unit, got, tc.want)
		}
	}
}

func TestParseStateValue(t *testing.T) {
	if _, ok := parseStateValue("unknown"); ok {
		t.Fatal("sentinel unknown accepted")
	}
	if _, ok := parseStateValue("unavailable"); ok {
		t.Fatal("sentinel unavailable accepted")
	}
	if _, ok := parseStateValue("on"); ok {
		t.Fatal("non-numeric state accepted")
	}
	if _, ok := parseStateValue(""); ok {
		t.Fatal("empty state accepted")
	}
	v, ok := parseStateValue(" 12.5 ")
	if !ok || v != 12.5 {
		t.Fatalf("parseStateValue(12.5) = %v, %v", v, ok)
	}
	if v, ok := parseStateValue("-3"); !ok || v != -3 {
		t.Fatalf("parseStateValue(-3) = %v, %v", v, ok)
	}
}

func TestReadingFromChange(t *testing.T) {
	changed := time.Unix(0, 1704067200000000000).UTC()
	sc := source.StateChange{
		EntityID: "sensor.grid_energy",
		NewState: &source.State{
			Value:       "12.5",
			Unit:        "kWh",
			DeviceClass: "energy",
			Attributes:  map[string]any{"friendly_name": "Grid Energy"},
			LastChanged: changed,
		},
		OldState: &source.State{Value: "12.0", Unit: "kWh", DeviceClass: "energy"},
	}
	r, reason := readingFromChange(sc)
	if reason != "" {
		t.Fatalf("unexpected discard: %q", reason)
	}
	if r.EntityID != "sensor.grid_energy" || r.State != 12.5 {
		t.Fatalf("unexpected reading: %+v", r)
	}
	if r.PreviousState == nil || *r.PreviousState != 12.0 {
		t.Fatalf("previous state not carried: %+v", r.PreviousState)
	}
	if r.Timestamp != 1704067200000000000 {
		t.Fatalf("timestamp = %d", r.Timestamp)
	}
	if r.Attributes["friendly_name"] != "Grid Energy" {
		t.Fatalf("attributes not carried: %+v", r.Attributes)
	}
}

func TestReadingFromChangeDiscards(t *testing.T) {
	if _, reason := readingFromChange(source.StateChange{EntityID: "sensor.x"}); reason != "incomplete" {
		t.Fatalf("missing new state: reason %q", reason)
	}
	if _, reason := readingFromChange(source.StateChange{
		EntityID: "sensor.temp",
		NewState: &source.State{Value: "21.0", Unit: "°C", DeviceClass: "temperature"},
	}); reason != "non_energy" {
		t.Fatalf("non-energy entity: reason %q", reason)
	}
	if _, reason := readingFromChange(source.StateChange{
		EntityID: "sensor.grid_energy",
		NewState: &source.State{Value: "unavailable", Unit: "kWh", DeviceClass: "energy"},
	}); reason != "non_numeric" {
		t.Fatalf("sentinel state: reason %q", reason)
	}
}

func TestReadingFromChangeZeroTimestamp(t *testing.T) {
	before := time.Now().UnixNano()
	r, reason := readingFromChange(source.StateChange{
		EntityID: "sensor.grid_energy",
		NewState: &source.State{Value: "1", Unit: "kWh"},
	})
	if reason != "" {
		t.Fatalf("unexpected discard: %q", reason)
	}
	if r.Timestamp < before {
		t.Fatalf("zero last_changed not defaulted to now: %d", r.Timestamp)
	}
}

func TestStatisticFromBucket(t *testing.T) {
	sum := 42.5
	start := time.Unix(1704067200, 0).UTC()
	s := statisticFromBucket("sensor.grid_energy", timeseries.PeriodHour, source.StatBucket{
		Start: start,
		Sum:   &sum,
	})
	if s.EntityID != "sensor.grid_energy" || s.Period != timeseries.PeriodHour {
		t.Fatalf("unexpected statistic: %+v", s)
	}
	if s.Sum == nil || *s.Sum != 42.5 {
		t.Fatalf("sum not carried: %+v", s.Sum)
	}
	if s.Mean != nil || s.Min != nil || s.Max != nil || s.State != nil {
		t.Fatalf("absent aggregates must stay nil: %+v", s)
	}
	if s.Timestamp != start.UnixNano() {
		t.Fatalf("timestamp = %d", s.Timestamp)
	}
}
