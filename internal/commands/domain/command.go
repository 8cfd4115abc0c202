package commands

import "errors"

// ActuatorCommand is one desired actuator transition inside a control
// request.
type ActuatorCommand struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status bool   `json:"status"`
}

// Validate checks the command addresses a concrete actuator.
func (c ActuatorCommand) Validate() error {
	if c.ID == "" {
		return errors.New("commands: actuator id required")
	}
	return nil
}

// ActuatorAck is one device-confirmed actuator status inside an
// acknowledgment.
type ActuatorAck struct {
	ID     string
	Name   string
	Status bool
}

// ControlMessage is the wire shape published to the device control
// topic. Field names follow the device firmware protocol: product_id,
// a pumps list, numeric status.
type ControlMessage struct {
	DeviceID  string            `json:"product_id"`
	Pumps     []ControlActuator `json:"pumps"`
	Timestamp string            `json:"timestamp"`
	MessageID string            `json:"messageId"`
}

// ControlActuator is one entry of a ControlMessage.
type ControlActuator struct {
	PumpID   string `json:"pumpId"`
	PumpName string `json:"pumpName"`
	Status   int    `json:"status"`
}
