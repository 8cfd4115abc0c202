package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"plantops-cloud/internal/broadcast"
	statesapp "plantops-cloud/internal/devicestate/application"
	devicestate "plantops-cloud/internal/devicestate/domain"

	commands "plantops-cloud/internal/commands/domain"
	"plantops-cloud/internal/observability/metrics"
)

// Publisher delivers control messages to the device bus.
type Publisher interface {
	PublishControl(ctx context.Context, msg commands.ControlMessage) error
}

// Notifier receives human-facing notices (command timeouts). A nil
// Notifier disables notification.
type Notifier interface {
	Post(message string)
}

// IssueResult reports an accepted control request.
type IssueResult struct {
	MessageID string              `json:"messageId"`
	DeviceID  string              `json:"deviceId"`
	States    []devicestate.State `json:"states"`
}

// AckEvent is the live payload pushed when a device acknowledges.
type AckEvent struct {
	DeviceID  string                 `json:"deviceId"`
	Actuators []commands.ActuatorAck `json:"actuators"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
}

// Service drives the command reconciliation state machine: issue marks
// intent pending, device telemetry confirms or supersedes it, and the
// sweep clears intent the device never answered.
type Service struct {
	states      *statesapp.Service
	publisher   Publisher
	broadcaster broadcast.Broadcaster
	notifier    Notifier
	logger      *log.Logger
	pendingTTL  time.Duration
}

// Option configures the service.
type Option func(*Service)

// WithNotifier attaches a timeout notifier.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithPendingTTL overrides how long a command may stay unconfirmed.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// NewService constructs a command service.
func NewService(states *statesapp.Service, publisher Publisher, broadcaster broadcast.Broadcaster, logger *log.Logger, opts ...Option) (*Service, error) {
	if states == nil {
		return nil, errors.New("commands: nil state service")
	}
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	if broadcaster == nil {
		broadcaster = broadcast.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		states:      states,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger,
		pendingTTL:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PendingTTL returns how long a command may stay unconfirmed.
func (s *Service) PendingTTL() time.Duration {
	return s.pendingTTL
}

// Issue marks every addressed actuator pending and publishes one
// control message to the bus. Confirmed status is not touched here; the
// device's acknowledgment (or contrary telemetry) resolves it. A newer
// command for the same actuator simply re-marks it pending, superseding
// the older desired value on the wire.
func (s *Service) Issue(ctx context.Context, kind devicestate.Kind, deviceID string, cmds []commands.ActuatorCommand) (*IssueResult, error) {
	if !kind.Valid() {
		return nil, devicestate.ErrInvalidKind
	}
	if deviceID == "" {
		return nil, errors.New("commands: device id required")
	}
	if len(cmds) == 0 {
		return nil, errors.New("commands: empty actuator list")
	}
	for _, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	result := &IssueResult{DeviceID: deviceID}
	wire := commands.ControlMessage{
		DeviceID:  deviceID,
		Timestamp: now.Format(time.RFC3339),
		MessageID: "cmd-" + buildShortID(deviceID+now.Format(time.RFC3339Nano)),
	}
	for _, cmd := range cmds {
		state, err := s.states.SetPending(ctx, kind, deviceID, cmd.ID, true)
		if err != nil {
			return nil, err
		}
		result.States = append(result.States, *state)

		status := 0
		if cmd.Status {
			status = 1
		}
		wire.Pumps = append(wire.Pumps, commands.ControlActuator{
			PumpID:   cmd.ID,
			PumpName: cmd.Name,
			Status:   status,
		})
	}

	if err := s.publisher.PublishControl(ctx, wire); err != nil {
		// Pending flags stay set; the sweep clears them if the device
		// never hears the command.
		s.logger.Printf("commands: publish %s error: %v", wire.MessageID, err)
		return nil, err
	}
	metrics.IncCommandIssued()
	result.MessageID = wire.MessageID
	s.logger.Printf("commands: issued %s to device %s (%d actuators)", wire.MessageID, deviceID, len(cmds))
	return result, nil
}

// HandleAck applies a device acknowledgment: every reported status is
// adopted as ground truth with pending cleared, and the ack is pushed
// to the device's live channel.
func (s *Service) HandleAck(ctx context.Context, deviceID string, acks []commands.ActuatorAck) error {
	if deviceID == "" || len(acks) == 0 {
		return errors.New("commands: empty acknowledgment")
	}
	for _, ack := range acks {
		if ack.ID == "" {
			continue
		}
		if _, err := s.states.Confirm(ctx, devicestate.KindPump, deviceID, ack.ID, ack.Status); err != nil {
			s.logger.Printf("commands: confirm %s/%s error: %v", deviceID, ack.ID, err)
			return err
		}
	}
	metrics.IncCommandAcked()

	event := AckEvent{
		DeviceID:  deviceID,
		Actuators: acks,
		Message:   "actuator status updated",
		Timestamp: time.Now().UTC(),
	}
	s.broadcaster.Publish(broadcast.DeviceScope(deviceID), broadcast.EventCommandAck, event)
	return nil
}

// SweepTimeouts clears pending flags older than the TTL. Superseded or
// abandoned commands are a normal terminal transition; the sweep only
// stops them from looking in-flight forever.
func (s *Service) SweepTimeouts(ctx context.Context, now time.Time) (int, error) {
	cleared, err := s.states.ClearPendingBefore(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		return len(cleared), err
	}
	metrics.AddCommandTimeouts(len(cleared))
	if len(cleared) > 0 {
		s.logger.Printf("commands: cleared %d timed-out pending flags", len(cleared))
		if s.notifier != nil {
			for _, state := range cleared {
				s.notifier.Post(fmt.Sprintf("command timed out: device %s actuator %s never confirmed", state.DeviceID, state.ActuatorID))
			}
		}
	}
	return len(cleared), nil
}

func buildShortID(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:8])
}
