package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	commands "plantops-cloud/internal/commands/domain"
	devicestate "plantops-cloud/internal/devicestate/domain"
	runtime "plantops-cloud/internal/runtime/domain"
)

type capturingRecorder struct {
	events []runtime.Event
	err    error
}

func (c *capturingRecorder) RecordEvent(_ context.Context, event runtime.Event) (*runtime.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.events = append(c.events, event)
	return &runtime.Record{}, nil
}

type capturingConfirmer struct {
	confirms []struct {
		DeviceID, ActuatorID string
		Status               bool
	}
}

func (c *capturingConfirmer) Confirm(_ context.Context, _ devicestate.Kind, deviceID, actuatorID string, status bool) (*devicestate.State, error) {
	c.confirms = append(c.confirms, struct {
		DeviceID, ActuatorID string
		Status               bool
	}{deviceID, actuatorID, status})
	return &devicestate.State{}, nil
}

type capturingAcks struct {
	deviceID string
	acks     []commands.ActuatorAck
}

func (c *capturingAcks) HandleAck(_ context.Context, deviceID string, acks []commands.ActuatorAck) error {
	c.deviceID = deviceID
	c.acks = acks
	return nil
}

type capturingSnapshots struct {
	saved []struct {
		DeviceID string
		Energy   float64
		Fuel     float64
		TS       time.Time
	}
}

func (c *capturingSnapshots) SaveSnapshot(_ context.Context, deviceID, _ string, ts time.Time, energy, fuel float64) error {
	c.saved = append(c.saved, struct {
		DeviceID string
		Energy   float64
		Fuel     float64
		TS       time.Time
	}{deviceID, energy, fuel, ts})
	return nil
}

func newTestAdapter(t *testing.T, recorder *capturingRecorder, states *capturingConfirmer, acks AckHandler, snaps SnapshotWriter) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(recorder, states, acks, snaps, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter
}

func TestHandleTelemetryRoutesActuatorEvents(t *testing.T) {
	recorder := &capturingRecorder{}
	states := &capturingConfirmer{}
	adapter := newTestAdapter(t, recorder, states, nil, nil)

	payload := []byte(`{
		"deviceId": "plant-01",
		"userName": "operator-a",
		"actuators": [
			{"id": "pump-1", "name": "Main Pump", "status": 1, "timestamp": "2026-03-10T08:00:00Z"},
			{"id": "pump-2", "name": "Backup Pump", "status": "OFF", "timestamp": "2026-03-10T08:00:05Z"}
		]
	}`)
	adapter.HandleTelemetry(context.Background(), payload)

	if len(recorder.events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(recorder.events))
	}
	first := recorder.events[0]
	if first.DeviceID != "plant-01" || first.UserName != "operator-a" || first.ActuatorID != "pump-1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.Status != runtime.StatusOn {
		t.Fatalf("first event status = %s, want ON", first.Status)
	}
	if !first.Timestamp.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("first event timestamp = %v", first.Timestamp)
	}
	if recorder.events[1].Status != runtime.StatusOff {
		t.Fatalf("second event status = %s, want OFF", recorder.events[1].Status)
	}
	if len(states.confirms) != 2 {
		t.Fatalf("confirmed %d states, want 2", len(states.confirms))
	}
	if !states.confirms[0].Status || states.confirms[1].Status {
		t.Fatalf("unexpected confirm statuses: %+v", states.confirms)
	}
}

func TestHandleTelemetryArrayPayload(t *testing.T) {
	recorder := &capturingRecorder{}
	adapter := newTestAdapter(t, recorder, &capturingConfirmer{}, nil, nil)

	payload := []byte(`[
		{"deviceId": "plant-01", "userName": "op", "actuators": [{"id": "p1", "status": true}]},
		{"deviceId": "plant-02", "userName": "op", "actuators": [{"id": "p2", "status": false}]}
	]`)
	adapter.HandleTelemetry(context.Background(), payload)

	if len(recorder.events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(recorder.events))
	}
	if recorder.events[1].DeviceID != "plant-02" {
		t.Fatalf("second event device = %s", recorder.events[1].DeviceID)
	}
}

func TestHandleTelemetryRoutesAcksWithoutUser(t *testing.T) {
	recorder := &capturingRecorder{}
	acks := &capturingAcks{}
	adapter := newTestAdapter(t, recorder, &capturingConfirmer{}, acks, nil)

	payload := []byte(`{
		"deviceId": "plant-01",
		"actuators": [{"id": "pump-1", "name": "Main Pump", "status": 1}]
	}`)
	adapter.HandleTelemetry(context.Background(), payload)

	if len(recorder.events) != 0 {
		t.Fatalf("ack payload must not record runtime events, got %d", len(recorder.events))
	}
	if acks.deviceID != "plant-01" || len(acks.acks) != 1 {
		t.Fatalf("ack not routed: device=%q acks=%d", acks.deviceID, len(acks.acks))
	}
	if !acks.acks[0].Status {
		t.Fatalf("ack status = false, want true")
	}
}

func TestHandleTelemetryStacksSaveSnapshots(t *testing.T) {
	snaps := &capturingSnapshots{}
	adapter := newTestAdapter(t, &capturingRecorder{}, &capturingConfirmer{}, nil, snaps)

	payload := []byte(`{
		"deviceId": "plant-01",
		"userName": "op",
		"timestamp": "2026-03-10T09:00:00Z",
		"stacks": [{"stackName": "gen-1", "energy": 1250.5, "fuel_volume_liters": 830.2}]
	}`)
	adapter.HandleTelemetry(context.Background(), payload)

	if len(snaps.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(snaps.saved))
	}
	got := snaps.saved[0]
	if got.Energy != 1250.5 || got.Fuel != 830.2 {
		t.Fatalf("snapshot values = %v/%v", got.Energy, got.Fuel)
	}
	if !got.TS.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("snapshot timestamp = %v", got.TS)
	}
}

func TestHandleTelemetryDropsMalformed(t *testing.T) {
	recorder := &capturingRecorder{}
	adapter := newTestAdapter(t, recorder, &capturingConfirmer{}, nil, nil)

	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"userName": "op", "actuators": [{"id": "p1", "status": 1}]}`,
		`{"deviceId": "plant-01", "userName": "op"}`,
	} {
		adapter.HandleTelemetry(context.Background(), []byte(payload))
	}
	if len(recorder.events) != 0 {
		t.Fatalf("malformed payloads recorded %d events", len(recorder.events))
	}
}

func TestHandleTelemetrySkipsBadStatusKeepsRest(t *testing.T) {
	recorder := &capturingRecorder{}
	adapter := newTestAdapter(t, recorder, &capturingConfirmer{}, nil, nil)

	payload := []byte(`{
		"deviceId": "plant-01",
		"userName": "op",
		"actuators": [
			{"id": "p1", "status": 7},
			{"id": "p2", "status": "ON"}
		]
	}`)
	adapter.HandleTelemetry(context.Background(), payload)

	if len(recorder.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(recorder.events))
	}
	if recorder.events[0].ActuatorID != "p2" {
		t.Fatalf("kept event = %s, want p2", recorder.events[0].ActuatorID)
	}
}

func TestNormalizeStatusForms(t *testing.T) {
	cases := []struct {
		raw     string
		want    runtime.Status
		wantErr bool
	}{
		{`true`, runtime.StatusOn, false},
		{`false`, runtime.StatusOff, false},
		{`1`, runtime.StatusOn, false},
		{`0`, runtime.StatusOff, false},
		{`"ON"`, runtime.StatusOn, false},
		{`"off"`, runtime.StatusOff, false},
		{`"True"`, runtime.StatusOn, false},
		{`"1"`, runtime.StatusOn, false},
		{`"0"`, runtime.StatusOff, false},
		{`2`, "", true},
		{`"maybe"`, "", true},
		{``, "", true},
		{`null`, "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeStatus(json.RawMessage(tc.raw))
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeStatus(%q): want error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeStatus(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeTimestampForms(t *testing.T) {
	fallback := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		want time.Time
	}{
		{`"2026-03-10T08:00:00Z"`, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		{`1773129600`, time.Unix(1773129600, 0).UTC()},
		{`1773129600000`, time.UnixMilli(1773129600000).UTC()},
		{`"garbage"`, fallback},
		{`null`, fallback},
		{``, fallback},
	}
	for _, tc := range cases {
		got := normalizeTimestamp(json.RawMessage(tc.raw), fallback)
		if !got.Equal(tc.want) {
			t.Errorf("normalizeTimestamp(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestHandleMessageSurfacesStoreErrors(t *testing.T) {
	recorder := &capturingRecorder{err: errors.New("db down")}
	adapter := newTestAdapter(t, recorder, &capturingConfirmer{}, nil, nil)

	err := adapter.handleMessage(context.Background(), telemetryMessage{
		DeviceID:  "plant-01",
		UserName:  "op",
		Actuators: []actuatorEntry{{ID: "p1", Status: json.RawMessage(`1`)}},
	})
	if err == nil {
		t.Fatal("want store error surfaced")
	}
}
