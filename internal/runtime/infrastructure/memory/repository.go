package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	runtime "plantops-cloud/internal/runtime/domain"
)

// RuntimeRepository is an in-memory runtime store used in tests.
type RuntimeRepository struct {
	mu      sync.Mutex
	records map[string]*runtime.Record
}

// NewRuntimeRepository constructs a repository.
func NewRuntimeRepository() *RuntimeRepository {
	return &RuntimeRepository{records: make(map[string]*runtime.Record)}
}

func key(deviceID, userName, actuatorID, date string) string {
	return strings.Join([]string{deviceID, userName, actuatorID, date}, "|")
}

// Apply folds one event under the repository lock.
func (r *RuntimeRepository) Apply(ctx context.Context, event runtime.Event) (*runtime.Record, error) {
	_ = ctx
	date := event.Date()

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(event.DeviceID, event.UserName, event.ActuatorID, date)
	record := r.records[k]
	if record == nil {
		record = &runtime.Record{
			DeviceID:     event.DeviceID,
			UserName:     event.UserName,
			ActuatorID:   event.ActuatorID,
			ActuatorName: event.ActuatorName,
			Date:         date,
		}
		r.records[k] = record
	}
	if event.ActuatorName != "" {
		record.ActuatorName = event.ActuatorName
	}
	record.Apply(event.Status, event.Timestamp)
	return record.Clone(), nil
}

// ListForDate lists records for one device, user and day.
func (r *RuntimeRepository) ListForDate(ctx context.Context, deviceID, userName, date string) ([]runtime.Record, error) {
	return r.list(ctx, deviceID, userName, date, date, "")
}

// ListRange lists records in a date range.
func (r *RuntimeRepository) ListRange(ctx context.Context, deviceID, userName, from, to, actuatorID string) ([]runtime.Record, error) {
	return r.list(ctx, deviceID, userName, from, to, actuatorID)
}

func (r *RuntimeRepository) list(_ context.Context, deviceID, userName, from, to, actuatorID string) ([]runtime.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]runtime.Record, 0)
	for _, rec := range r.records {
		if rec.DeviceID != deviceID || rec.UserName != userName {
			continue
		}
		if rec.Date < from || rec.Date > to {
			continue
		}
		if actuatorID != "" && rec.ActuatorID != actuatorID {
			continue
		}
		out = append(out, *rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ActuatorName < out[j].ActuatorName
	})
	return out, nil
}

// ListActuators returns distinct actuators seen for a device and user.
func (r *RuntimeRepository) ListActuators(ctx context.Context, deviceID, userName string) ([]runtime.Actuator, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]runtime.Actuator)
	for _, rec := range r.records {
		if rec.DeviceID != deviceID || rec.UserName != userName {
			continue
		}
		seen[rec.ActuatorID] = runtime.Actuator{ActuatorID: rec.ActuatorID, ActuatorName: rec.ActuatorName}
	}
	out := make([]runtime.Actuator, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActuatorName < out[j].ActuatorName })
	return out, nil
}
