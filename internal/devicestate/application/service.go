package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"plantops-cloud/internal/broadcast"
	devicestate "plantops-cloud/internal/devicestate/domain"
	"plantops-cloud/internal/observability/metrics"
)

// ErrInvalidInput marks caller mistakes in state operations, as opposed
// to store failures.
var ErrInvalidInput = errors.New("devicestate: invalid input")

// Repository persists actuator states for one kind. Every write is a
// single atomic upsert keyed by (deviceID, actuatorID); callers never
// read-modify-write.
type Repository interface {
	SetPending(ctx context.Context, deviceID, actuatorID string, pending bool, now time.Time) (*devicestate.State, error)
	Confirm(ctx context.Context, deviceID, actuatorID string, status bool, now time.Time) (*devicestate.State, error)
	Upsert(ctx context.Context, deviceID, actuatorID string, status, pending bool, now time.Time) (*devicestate.State, error)
	Get(ctx context.Context, deviceID, actuatorID string) (*devicestate.State, error)
	ListByDevice(ctx context.Context, deviceID string) ([]devicestate.State, error)
	ClearPendingBefore(ctx context.Context, before time.Time) ([]devicestate.State, error)
}

// Clock supplies the write timestamp; injected for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Service owns pump and valve state and pushes every change to the
// live channel.
type Service struct {
	repos       map[devicestate.Kind]Repository
	broadcaster broadcast.Broadcaster
	clock       Clock
	logger      *log.Logger
}

// NewService constructs a state service over per-kind repositories.
func NewService(pumps, valves Repository, broadcaster broadcast.Broadcaster, logger *log.Logger) (*Service, error) {
	if pumps == nil || valves == nil {
		return nil, errors.New("devicestate: nil repository")
	}
	if broadcaster == nil {
		broadcaster = broadcast.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repos: map[devicestate.Kind]Repository{
			devicestate.KindPump:  pumps,
			devicestate.KindValve: valves,
		},
		broadcaster: broadcaster,
		clock:       SystemClock{},
		logger:      logger,
	}, nil
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(clock Clock) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *Service) repo(kind devicestate.Kind) (Repository, error) {
	repo, ok := s.repos[kind]
	if !ok {
		return nil, devicestate.ErrInvalidKind
	}
	return repo, nil
}

// StateUpdate is the live payload pushed after every state write.
type StateUpdate struct {
	DeviceID    string    `json:"deviceId"`
	ActuatorID  string    `json:"actuatorId"`
	Kind        string    `json:"kind"`
	Status      bool      `json:"status"`
	Pending     bool      `json:"pending"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SetPending records command intent: the pending flag flips, the
// confirmed status stays untouched until telemetry attests it.
func (s *Service) SetPending(ctx context.Context, kind devicestate.Kind, deviceID, actuatorID string, pending bool) (*devicestate.State, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	if deviceID == "" || actuatorID == "" {
		return nil, fmt.Errorf("%w: device id and actuator id required", ErrInvalidInput)
	}
	state, err := repo.SetPending(ctx, deviceID, actuatorID, pending, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.published(kind, state)
	return state, nil
}

// Confirm adopts telemetry-observed status as ground truth and clears
// pending whether or not the observation matches the commanded value; a
// mismatch means the command was superseded, which is a normal terminal
// transition, not an error.
func (s *Service) Confirm(ctx context.Context, kind devicestate.Kind, deviceID, actuatorID string, status bool) (*devicestate.State, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	if deviceID == "" || actuatorID == "" {
		return nil, fmt.Errorf("%w: device id and actuator id required", ErrInvalidInput)
	}
	state, err := repo.Confirm(ctx, deviceID, actuatorID, status, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.published(kind, state)
	return state, nil
}

// Patch upserts status and pending together, for fire-and-confirm call
// sites that set both fields atomically.
func (s *Service) Patch(ctx context.Context, kind devicestate.Kind, deviceID, actuatorID string, status, pending bool) (*devicestate.State, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	if deviceID == "" || actuatorID == "" {
		return nil, fmt.Errorf("%w: device id and actuator id required", ErrInvalidInput)
	}
	state, err := repo.Upsert(ctx, deviceID, actuatorID, status, pending, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.published(kind, state)
	return state, nil
}

// Get returns the state for one actuator, defaulting to OFF/not-pending
// when no record exists. Reading never creates a record.
func (s *Service) Get(ctx context.Context, kind devicestate.Kind, deviceID, actuatorID string) (devicestate.State, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return devicestate.State{}, err
	}
	state, err := repo.Get(ctx, deviceID, actuatorID)
	if err != nil {
		return devicestate.State{}, err
	}
	if state == nil {
		return devicestate.Default(deviceID, actuatorID), nil
	}
	return *state, nil
}

// ListByDevice returns the states of every known actuator of a device.
// No data is an empty slice.
func (s *Service) ListByDevice(ctx context.Context, kind devicestate.Kind, deviceID string) ([]devicestate.State, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id required", ErrInvalidInput)
	}
	states, err := repo.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if states == nil {
		states = []devicestate.State{}
	}
	return states, nil
}

// ClearPendingBefore drops the pending flag on entries whose last write
// is older than the cutoff, across both kinds. Returns the cleared
// states for notification.
func (s *Service) ClearPendingBefore(ctx context.Context, before time.Time) ([]devicestate.State, error) {
	var cleared []devicestate.State
	for _, kind := range []devicestate.Kind{devicestate.KindPump, devicestate.KindValve} {
		repo := s.repos[kind]
		states, err := repo.ClearPendingBefore(ctx, before)
		if err != nil {
			return cleared, err
		}
		for i := range states {
			s.published(kind, &states[i])
		}
		cleared = append(cleared, states...)
	}
	return cleared, nil
}

func (s *Service) published(kind devicestate.Kind, state *devicestate.State) {
	if state == nil {
		return
	}
	metrics.IncStateWrite(string(kind))
	update := StateUpdate{
		DeviceID:    state.DeviceID,
		ActuatorID:  state.ActuatorID,
		Kind:        string(kind),
		Status:      state.Status,
		Pending:     state.Pending,
		LastUpdated: state.LastUpdated,
	}
	s.broadcaster.Publish(broadcast.DeviceScope(state.DeviceID), broadcast.EventStateUpdate, update)
}
