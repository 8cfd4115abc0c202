package devicestate

import (
	"errors"
	"time"
)

// Kind separates the two actuator families. Pumps and valves share the
// same state shape but live in distinct collections with independent
// pending lifecycles.
type Kind string

const (
	KindPump  Kind = "pump"
	KindValve Kind = "valve"
)

// ErrInvalidKind is returned for a kind outside pump/valve.
var ErrInvalidKind = errors.New("devicestate: invalid kind")

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindPump || k == KindValve
}

// State is the last-known operational status of one actuator.
//
// Status is ground truth attested by device telemetry. Pending is true
// while a user-issued command awaits confirmation; it is set only by
// command issuance and cleared only by a confirming write (matching or
// superseding) or the timeout sweep.
type State struct {
	DeviceID    string    `json:"deviceId"`
	ActuatorID  string    `json:"actuatorId"`
	Status      bool      `json:"status"`
	Pending     bool      `json:"pending"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Default returns the state reported for an actuator with no record:
// OFF, not pending. Absence is not an error and reading never creates
// a record.
func Default(deviceID, actuatorID string) State {
	return State{DeviceID: deviceID, ActuatorID: actuatorID}
}
