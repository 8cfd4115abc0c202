package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	devicestate "plantops-cloud/internal/devicestate/domain"
)

// StateRepository is an in-memory actuator state store used in tests.
type StateRepository struct {
	mu     sync.Mutex
	states map[string]*devicestate.State
}

// NewStateRepository constructs a repository.
func NewStateRepository() *StateRepository {
	return &StateRepository{states: make(map[string]*devicestate.State)}
}

func key(deviceID, actuatorID string) string {
	return deviceID + "|" + actuatorID
}

func (r *StateRepository) upsert(deviceID, actuatorID string, mutate func(*devicestate.State)) *devicestate.State {
	k := key(deviceID, actuatorID)
	state := r.states[k]
	if state == nil {
		state = &devicestate.State{DeviceID: deviceID, ActuatorID: actuatorID}
		r.states[k] = state
	}
	mutate(state)
	clone := *state
	return &clone
}

// SetPending flips the pending flag, leaving confirmed status untouched.
func (r *StateRepository) SetPending(ctx context.Context, deviceID, actuatorID string, pending bool, now time.Time) (*devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsert(deviceID, actuatorID, func(s *devicestate.State) {
		s.Pending = pending
		s.LastUpdated = now
	}), nil
}

// Confirm adopts the observed status and clears pending.
func (r *StateRepository) Confirm(ctx context.Context, deviceID, actuatorID string, status bool, now time.Time) (*devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsert(deviceID, actuatorID, func(s *devicestate.State) {
		s.Status = status
		s.Pending = false
		s.LastUpdated = now
	}), nil
}

// Upsert sets status and pending together.
func (r *StateRepository) Upsert(ctx context.Context, deviceID, actuatorID string, status, pending bool, now time.Time) (*devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsert(deviceID, actuatorID, func(s *devicestate.State) {
		s.Status = status
		s.Pending = pending
		s.LastUpdated = now
	}), nil
}

// Get returns nil when no record exists.
func (r *StateRepository) Get(ctx context.Context, deviceID, actuatorID string) (*devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.states[key(deviceID, actuatorID)]
	if state == nil {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

// ListByDevice lists states for a device sorted by actuator id.
func (r *StateRepository) ListByDevice(ctx context.Context, deviceID string) ([]devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]devicestate.State, 0)
	for _, state := range r.states {
		if state.DeviceID == deviceID {
			out = append(out, *state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActuatorID < out[j].ActuatorID })
	return out, nil
}

// ClearPendingBefore clears stale pending flags and returns the
// affected states.
func (r *StateRepository) ClearPendingBefore(ctx context.Context, before time.Time) ([]devicestate.State, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := make([]devicestate.State, 0)
	for _, state := range r.states {
		if state.Pending && state.LastUpdated.Before(before) {
			state.Pending = false
			cleared = append(cleared, *state)
		}
	}
	sort.Slice(cleared, func(i, j int) bool { return cleared[i].ActuatorID < cleared[j].ActuatorID })
	return cleared, nil
}
