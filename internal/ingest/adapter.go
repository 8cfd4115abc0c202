package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	commands "plantops-cloud/internal/commands/domain"
	devicestate "plantops-cloud/internal/devicestate/domain"
	"plantops-cloud/internal/observability/metrics"
	runtime "plantops-cloud/internal/runtime/domain"
)

// RuntimeRecorder folds ON/OFF events into daily totals.
type RuntimeRecorder interface {
	RecordEvent(ctx context.Context, event runtime.Event) (*runtime.Record, error)
}

// StateConfirmer adopts telemetry-observed status as ground truth.
type StateConfirmer interface {
	Confirm(ctx context.Context, kind devicestate.Kind, deviceID, actuatorID string, status bool) (*devicestate.State, error)
}

// AckHandler resolves pending commands from device acknowledgments.
type AckHandler interface {
	HandleAck(ctx context.Context, deviceID string, acks []commands.ActuatorAck) error
}

// SnapshotWriter stores meter snapshots carried alongside actuator
// telemetry, for the daily consumption rollup.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, deviceID, userName string, ts time.Time, energyKWh, fuelLitres float64) error
}

// telemetryMessage is the parsed bus payload. Devices send either a
// single object or an array of them; actuator entries without a
// userName are command acknowledgments rather than full telemetry.
type telemetryMessage struct {
	DeviceID  string          `json:"deviceId"`
	UserName  string          `json:"userName"`
	Actuators []actuatorEntry `json:"actuators"`
	Stacks    []stackEntry    `json:"stacks"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type actuatorEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    json.RawMessage `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type stackEntry struct {
	Name       string  `json:"stackName"`
	EnergyKWh  float64 `json:"energy"`
	FuelLitres float64 `json:"fuel_volume_liters"`
}

// Adapter validates and routes parsed bus messages into the runtime
// accumulator, the state store, command reconciliation and the
// consumption snapshot store. Malformed input is dropped with a logged
// diagnostic; the bus callback never sees a panic or an error it would
// have to crash on.
type Adapter struct {
	recorder  RuntimeRecorder
	states    StateConfirmer
	acks      AckHandler
	snapshots SnapshotWriter
	logger    *log.Logger
	now       func() time.Time
}

// NewAdapter constructs an adapter. acks and snapshots may be nil when
// those paths are not wired.
func NewAdapter(recorder RuntimeRecorder, states StateConfirmer, acks AckHandler, snapshots SnapshotWriter, logger *log.Logger) (*Adapter, error) {
	if recorder == nil {
		return nil, errors.New("ingest: nil runtime recorder")
	}
	if states == nil {
		return nil, errors.New("ingest: nil state confirmer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Adapter{
		recorder:  recorder,
		states:    states,
		acks:      acks,
		snapshots: snapshots,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides receipt-time, for tests.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	if now != nil {
		a.now = now
	}
	return a
}

// HandleTelemetry processes one raw bus payload.
func (a *Adapter) HandleTelemetry(ctx context.Context, payload []byte) {
	messages, err := parseMessages(payload)
	if err != nil {
		metrics.IncTelemetryDropped("unparseable")
		a.logger.Printf("ingest: drop unparseable message: %v", err)
		return
	}

	for _, msg := range messages {
		if err := a.handleMessage(ctx, msg); err != nil {
			metrics.IncTelemetryMessage(false)
			a.logger.Printf("ingest: message error: %v", err)
			continue
		}
		metrics.IncTelemetryMessage(true)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg telemetryMessage) error {
	if msg.DeviceID == "" {
		metrics.IncTelemetryDropped("missing_device")
		a.logger.Printf("ingest: drop message without deviceId")
		return nil
	}
	if len(msg.Actuators) == 0 && len(msg.Stacks) == 0 {
		metrics.IncTelemetryDropped("empty")
		a.logger.Printf("ingest: drop message for device %s without actuators or stacks", msg.DeviceID)
		return nil
	}

	receipt := a.now()

	// Actuator entries without a userName are device acknowledgments
	// of an issued command, not full telemetry.
	if len(msg.Actuators) > 0 && msg.UserName == "" && a.acks != nil {
		return a.handleAck(ctx, msg)
	}

	var firstErr error
	for _, entry := range msg.Actuators {
		if entry.ID == "" {
			a.logger.Printf("ingest: skip actuator without id on device %s", msg.DeviceID)
			continue
		}
		status, err := NormalizeStatus(entry.Status)
		if err != nil {
			a.logger.Printf("ingest: skip actuator %s/%s: %v", msg.DeviceID, entry.ID, err)
			continue
		}
		ts := normalizeTimestamp(entry.Timestamp, receipt)

		if _, err := a.states.Confirm(ctx, devicestate.KindPump, msg.DeviceID, entry.ID, status == runtime.StatusOn); err != nil && firstErr == nil {
			firstErr = err
		}
		if _, err := a.recorder.RecordEvent(ctx, runtime.Event{
			DeviceID:     msg.DeviceID,
			UserName:     msg.UserName,
			ActuatorID:   entry.ID,
			ActuatorName: entry.Name,
			Status:       status,
			Timestamp:    ts,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.snapshots != nil {
		ts := normalizeTimestamp(msg.Timestamp, receipt)
		for _, stack := range msg.Stacks {
			if err := a.snapshots.SaveSnapshot(ctx, msg.DeviceID, msg.UserName, ts, stack.EnergyKWh, stack.FuelLitres); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (a *Adapter) handleAck(ctx context.Context, msg telemetryMessage) error {
	acks := make([]commands.ActuatorAck, 0, len(msg.Actuators))
	for _, entry := range msg.Actuators {
		if entry.ID == "" {
			continue
		}
		status, err := NormalizeStatus(entry.Status)
		if err != nil {
			a.logger.Printf("ingest: skip ack %s/%s: %v", msg.DeviceID, entry.ID, err)
			continue
		}
		acks = append(acks, commands.ActuatorAck{
			ID:     entry.ID,
			Name:   entry.Name,
			Status: status == runtime.StatusOn,
		})
	}
	if len(acks) == 0 {
		metrics.IncTelemetryDropped("empty_ack")
		return nil
	}
	return a.acks.HandleAck(ctx, msg.DeviceID, acks)
}

func parseMessages(payload []byte) ([]telemetryMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}
	if trimmed[0] == '[' {
		var messages []telemetryMessage
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, err
		}
		return messages, nil
	}
	var msg telemetryMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, err
	}
	return []telemetryMessage{msg}, nil
}

// NormalizeStatus maps the status forms devices actually send (JSON
// booleans, 0/1 numerics, and ON/OFF or true/false strings in any case)
// onto the canonical enum.
func NormalizeStatus(raw json.RawMessage) (runtime.Status, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", errors.New("missing status")
	}

	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		if b {
			return runtime.StatusOn, nil
		}
		return runtime.StatusOff, nil
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		switch n {
		case 1:
			return runtime.StatusOn, nil
		case 0:
			return runtime.StatusOff, nil
		default:
			return "", errors.New("numeric status outside 0/1")
		}
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "ON", "1", "TRUE":
			return runtime.StatusOn, nil
		case "OFF", "0", "FALSE":
			return runtime.StatusOff, nil
		default:
			return "", errors.New("unrecognized status string")
		}
	}
	return "", errors.New("unsupported status form")
}

// normalizeTimestamp accepts RFC3339 strings and epoch seconds or
// milliseconds; fallback is the receipt time when the device sent
// nothing usable.
func normalizeTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fallback
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		return fallback
	}

	if n, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil && n > 0 {
		// Accept milliseconds or seconds.
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	return fallback
}
