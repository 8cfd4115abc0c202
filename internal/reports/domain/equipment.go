package domain

import (
	"errors"
	"time"
)

// EquipmentStatus is one dated condition record for a piece of plant
// equipment. One record per (device, equipment, date); later writes for
// the same key replace the earlier ones.
type EquipmentStatus struct {
	DeviceID    string    `json:"deviceId"`
	EquipmentID string    `json:"equipmentId"`
	Name        string    `json:"name"`
	Condition   string    `json:"condition"`
	Date        string    `json:"date"`
	Notes       string    `json:"notes,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks an equipment status before it is stored.
func (s EquipmentStatus) Validate() error {
	if s.DeviceID == "" {
		return errors.New("equipment status: device id required")
	}
	if s.EquipmentID == "" {
		return errors.New("equipment status: equipment id required")
	}
	if s.Condition == "" {
		return errors.New("equipment status: condition required")
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return errors.New("equipment status: date must be YYYY-MM-DD")
	}
	return nil
}
