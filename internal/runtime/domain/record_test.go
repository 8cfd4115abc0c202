package runtime

import (
	"testing"
	"time"
)

func ts(h, m, s int) time.Time {
	return time.Date(2026, 3, 14, h, m, s, 0, time.UTC)
}

func TestApplyAccumulatesOnOffPairs(t *testing.T) {
	rec := &Record{DeviceID: "27", ActuatorID: "pump-1", Date: "2026-03-14"}

	rec.Apply(StatusOn, ts(10, 0, 0))
	rec.Apply(StatusOff, ts(10, 5, 30))
	if rec.TotalRuntimeMs != 330_000 {
		t.Fatalf("expected 330000 ms, got %d", rec.TotalRuntimeMs)
	}
	if rec.LastOnTime != nil {
		t.Fatalf("expected LastOnTime cleared after OFF")
	}

	rec.Apply(StatusOn, ts(11, 0, 0))
	rec.Apply(StatusOff, ts(11, 0, 10))
	if rec.TotalRuntimeMs != 340_000 {
		t.Fatalf("expected 340000 ms, got %d", rec.TotalRuntimeMs)
	}
}

func TestApplyDuplicateOnKeepsFirstTimestamp(t *testing.T) {
	rec := &Record{}
	first := ts(9, 0, 0)

	rec.Apply(StatusOn, first)
	rec.Apply(StatusOn, ts(9, 30, 0))

	if rec.LastOnTime == nil || !rec.LastOnTime.Equal(first) {
		t.Fatalf("expected LastOnTime to stay at first ON, got %v", rec.LastOnTime)
	}

	rec.Apply(StatusOff, ts(10, 0, 0))
	if rec.TotalRuntimeMs != int64(time.Hour/time.Millisecond) {
		t.Fatalf("expected one hour, got %d ms", rec.TotalRuntimeMs)
	}
}

func TestApplyNegativeDeltaContributesNothing(t *testing.T) {
	rec := &Record{}

	rec.Apply(StatusOn, ts(12, 0, 0))
	rec.Apply(StatusOff, ts(11, 59, 0))

	if rec.TotalRuntimeMs != 0 {
		t.Fatalf("negative delta must contribute zero, got %d", rec.TotalRuntimeMs)
	}
	if rec.LastOnTime != nil {
		t.Fatalf("LastOnTime must be cleared even on negative delta")
	}
}

func TestApplyOrphanOffIsNoop(t *testing.T) {
	rec := &Record{TotalRuntimeMs: 5000}

	rec.Apply(StatusOff, ts(8, 0, 0))

	if rec.TotalRuntimeMs != 5000 {
		t.Fatalf("orphan OFF must not change total, got %d", rec.TotalRuntimeMs)
	}
}

func TestFormatRuntime(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00"},
		{3_661_000, "01:01:01"},
		{330_000, "00:05:30"},
		{999, "00:00:00"},
		{-1, "00:00:00"},
		{90_000_000, "25:00:00"},
	}
	for _, tc := range cases {
		if got := FormatRuntime(tc.ms); got != tc.want {
			t.Errorf("FormatRuntime(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestEventValidate(t *testing.T) {
	valid := Event{DeviceID: "27", ActuatorID: "pump-1", Status: StatusOn, Timestamp: ts(10, 0, 0)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := map[string]Event{
		"missing device":   {ActuatorID: "pump-1", Status: StatusOn, Timestamp: ts(10, 0, 0)},
		"missing actuator": {DeviceID: "27", Status: StatusOn, Timestamp: ts(10, 0, 0)},
		"bad status":       {DeviceID: "27", ActuatorID: "pump-1", Status: "MAYBE", Timestamp: ts(10, 0, 0)},
		"zero timestamp":   {DeviceID: "27", ActuatorID: "pump-1", Status: StatusOn},
	}
	for name, event := range cases {
		if err := event.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEventDateUsesUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	event := Event{Timestamp: time.Date(2026, 3, 15, 2, 0, 0, 0, loc)}
	if got := event.Date(); got != "2026-03-14" {
		t.Fatalf("expected UTC date 2026-03-14, got %s", got)
	}
}
