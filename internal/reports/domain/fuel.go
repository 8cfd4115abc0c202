package domain

import (
	"errors"
	"time"
)

// FuelEntry is one manual fuel log line (delivery or consumption).
type FuelEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	UserName  string    `json:"userName"`
	EntryType string    `json:"entryType"`
	FuelType  string    `json:"fuelType"`
	Litres    float64   `json:"litres"`
	Date      string    `json:"date"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry types.
const (
	EntryDelivery    = "delivery"
	EntryConsumption = "consumption"
)

// Validate checks a fuel entry before it is stored.
func (e FuelEntry) Validate() error {
	if e.DeviceID == "" {
		return errors.New("fuel entry: device id required")
	}
	if e.EntryType != EntryDelivery && e.EntryType != EntryConsumption {
		return errors.New("fuel entry: entry type must be delivery or consumption")
	}
	if e.FuelType == "" {
		return errors.New("fuel entry: fuel type required")
	}
	if e.Litres <= 0 {
		return errors.New("fuel entry: litres must be positive")
	}
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return errors.New("fuel entry: date must be YYYY-MM-DD")
	}
	return nil
}

// FuelFilter narrows a fuel log listing. Empty fields match everything.
type FuelFilter struct {
	DeviceID  string
	EntryType string
	FuelType  string
	From      string
	To        string
}

// Matches reports whether an entry passes the filter.
func (f FuelFilter) Matches(e FuelEntry) bool {
	if f.DeviceID != "" && e.DeviceID != f.DeviceID {
		return false
	}
	if f.EntryType != "" && e.EntryType != f.EntryType {
		return false
	}
	if f.FuelType != "" && e.FuelType != f.FuelType {
		return false
	}
	if f.From != "" && e.Date < f.From {
		return false
	}
	if f.To != "" && e.Date > f.To {
		return false
	}
	return true
}
