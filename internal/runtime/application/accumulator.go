package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"plantops-cloud/internal/broadcast"
	"plantops-cloud/internal/observability/metrics"
	runtime "plantops-cloud/internal/runtime/domain"
)

// ErrInvalidQuery marks caller mistakes in query parameters, as opposed
// to store failures.
var ErrInvalidQuery = errors.New("runtime: invalid query")

// Repository persists daily runtime records. Apply must be atomic per
// (device, user, actuator, date) key: the load-fold-store of one event
// happens as a single operation against the backing store.
type Repository interface {
	Apply(ctx context.Context, event runtime.Event) (*runtime.Record, error)
	ListForDate(ctx context.Context, deviceID, userName, date string) ([]runtime.Record, error)
	ListRange(ctx context.Context, deviceID, userName, from, to, actuatorID string) ([]runtime.Record, error)
	ListActuators(ctx context.Context, deviceID, userName string) ([]runtime.Actuator, error)
}

// RuntimeEntry is the read projection for one actuator on one day.
type RuntimeEntry struct {
	ActuatorID   string `json:"actuatorId"`
	ActuatorName string `json:"actuatorName"`
	Runtime      string `json:"runtime"`
	Date         string `json:"date"`
}

// HistoryEntry is RuntimeEntry plus the raw total for export consumers.
type HistoryEntry struct {
	Date           string `json:"date"`
	ActuatorID     string `json:"actuatorId"`
	ActuatorName   string `json:"actuatorName"`
	TotalRuntimeMs int64  `json:"totalRuntimeMs"`
	Runtime        string `json:"runtime"`
}

// RuntimeUpdate is the live payload pushed after every applied event.
type RuntimeUpdate struct {
	DeviceID     string     `json:"deviceId"`
	UserName     string     `json:"userName,omitempty"`
	ActuatorID   string     `json:"actuatorId"`
	ActuatorName string     `json:"actuatorName"`
	Date         string     `json:"date"`
	Runtime      string     `json:"runtime"`
	LastOnTime   *time.Time `json:"lastOnTime"`
}

// Accumulator folds ON/OFF telemetry into per-day runtime totals and
// pushes every update to the live channel.
type Accumulator struct {
	repo        Repository
	broadcaster broadcast.Broadcaster
	logger      *log.Logger
}

// NewAccumulator constructs an accumulator.
func NewAccumulator(repo Repository, broadcaster broadcast.Broadcaster, logger *log.Logger) (*Accumulator, error) {
	if repo == nil {
		return nil, errors.New("runtime accumulator: nil repository")
	}
	if broadcaster == nil {
		broadcaster = broadcast.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Accumulator{repo: repo, broadcaster: broadcaster, logger: logger}, nil
}

// RecordEvent applies one ON/OFF event to the day bucket of its
// timestamp. Persistence failures are logged and returned; the event is
// not retried, so a dropped event only loses its own contribution.
func (a *Accumulator) RecordEvent(ctx context.Context, event runtime.Event) (*runtime.Record, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	record, err := a.repo.Apply(ctx, event)
	if err != nil {
		metrics.IncRuntimeEvent(false)
		a.logger.Printf("runtime accumulator: apply %s/%s error: %v", event.DeviceID, event.ActuatorID, err)
		return nil, err
	}
	metrics.IncRuntimeEvent(true)

	update := RuntimeUpdate{
		DeviceID:     record.DeviceID,
		UserName:     record.UserName,
		ActuatorID:   record.ActuatorID,
		ActuatorName: record.ActuatorName,
		Date:         record.Date,
		Runtime:      record.Runtime(),
		LastOnTime:   record.LastOnTime,
	}
	a.broadcaster.Publish(broadcast.DeviceScope(record.DeviceID), broadcast.EventRuntimeUpdate, update)
	if record.UserName != "" {
		a.broadcaster.Publish(broadcast.UserScope(record.DeviceID, record.UserName), broadcast.EventRuntimeUpdate, update)
	}
	return record, nil
}

// RuntimeForDate lists formatted runtimes for every actuator of a device
// on one day. No data is an empty slice, never an error.
func (a *Accumulator) RuntimeForDate(ctx context.Context, deviceID, userName, date string) ([]RuntimeEntry, error) {
	if deviceID == "" || userName == "" {
		return nil, fmt.Errorf("%w: device id and user name required", ErrInvalidQuery)
	}
	if _, err := time.Parse(runtime.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: invalid date", ErrInvalidQuery)
	}

	records, err := a.repo.ListForDate(ctx, deviceID, userName, date)
	if err != nil {
		return nil, err
	}
	entries := make([]RuntimeEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, RuntimeEntry{
			ActuatorID:   rec.ActuatorID,
			ActuatorName: rec.ActuatorName,
			Runtime:      rec.Runtime(),
			Date:         rec.Date,
		})
	}
	return entries, nil
}

// RuntimeHistory lists daily totals in a date range, optionally for a
// single actuator. Dates are lexicographic YYYY-MM-DD, so a simple
// string range works.
func (a *Accumulator) RuntimeHistory(ctx context.Context, deviceID, userName, from, to, actuatorID string) ([]HistoryEntry, error) {
	if deviceID == "" || userName == "" || from == "" || to == "" {
		return nil, fmt.Errorf("%w: device id, user name, from and to required", ErrInvalidQuery)
	}
	for _, d := range []string{from, to} {
		if _, err := time.Parse(runtime.DateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: invalid date range", ErrInvalidQuery)
		}
	}

	records, err := a.repo.ListRange(ctx, deviceID, userName, from, to, actuatorID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			Date:           rec.Date,
			ActuatorID:     rec.ActuatorID,
			ActuatorName:   rec.ActuatorName,
			TotalRuntimeMs: rec.TotalRuntimeMs,
			Runtime:        rec.Runtime(),
		})
	}
	return entries, nil
}

// ListActuators returns the distinct actuators ever seen for a device
// and user, sorted by name.
func (a *Accumulator) ListActuators(ctx context.Context, deviceID, userName string) ([]runtime.Actuator, error) {
	if deviceID == "" || userName == "" {
		return nil, fmt.Errorf("%w: device id and user name required", ErrInvalidQuery)
	}
	actuators, err := a.repo.ListActuators(ctx, deviceID, userName)
	if err != nil {
		return nil, err
	}
	if actuators == nil {
		actuators = []runtime.Actuator{}
	}
	return actuators, nil
}
