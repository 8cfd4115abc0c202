package runtime

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day key format for daily runtime records.
const DateLayout = "2006-01-02"

// Status is the binary operational status of an actuator.
type Status string

const (
	StatusOn  Status = "ON"
	StatusOff Status = "OFF"
)

// ErrInvalidStatus is returned for a status outside ON/OFF.
var ErrInvalidStatus = errors.New("runtime: invalid status")

// Record accumulates ON-duration for one actuator on one calendar day.
//
// TotalRuntimeMs only ever grows within a day: an OFF event folds the
// elapsed time since LastOnTime into the total, and negative deltas
// (out-of-order or skewed clocks) contribute nothing.
type Record struct {
	DeviceID       string
	UserName       string
	ActuatorID     string
	ActuatorName   string
	Date           string
	TotalRuntimeMs int64
	LastOnTime     *time.Time
}

// Apply folds one ON/OFF event into the record.
//
// ON is idempotent: a duplicate ON without an intervening OFF keeps the
// first LastOnTime so the clock is not restarted. OFF adds the positive
// delta since LastOnTime and clears it regardless of the delta sign; an
// OFF with no prior ON is a no-op on the total.
func (r *Record) Apply(status Status, ts time.Time) {
	switch status {
	case StatusOn:
		if r.LastOnTime == nil {
			t := ts
			r.LastOnTime = &t
		}
	case StatusOff:
		if r.LastOnTime != nil {
			if delta := ts.Sub(*r.LastOnTime).Milliseconds(); delta > 0 {
				r.TotalRuntimeMs += delta
			}
			r.LastOnTime = nil
		}
	}
}

// Runtime renders the accumulated duration as HH:MM:SS.
func (r *Record) Runtime() string {
	return FormatRuntime(r.TotalRuntimeMs)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.LastOnTime != nil {
		t := *r.LastOnTime
		clone.LastOnTime = &t
	}
	return &clone
}

// FormatRuntime renders milliseconds as zero-padded HH:MM:SS, flooring
// to whole seconds. Hours are a running total and may exceed 24.
func FormatRuntime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Actuator identifies one actuator seen in runtime records.
type Actuator struct {
	ActuatorID   string `json:"actuatorId"`
	ActuatorName string `json:"actuatorName"`
}

// Event is one ON/OFF observation for an actuator.
type Event struct {
	DeviceID     string
	UserName     string
	ActuatorID   string
	ActuatorName string
	Status       Status
	Timestamp    time.Time
}

// Validate checks the event carries everything the accumulator needs.
func (e Event) Validate() error {
	if e.DeviceID == "" {
		return errors.New("runtime: empty device id")
	}
	if e.ActuatorID == "" {
		return errors.New("runtime: empty actuator id")
	}
	if e.Status != StatusOn && e.Status != StatusOff {
		return ErrInvalidStatus
	}
	if e.Timestamp.IsZero() {
		return errors.New("runtime: zero timestamp")
	}
	return nil
}

// Date returns the calendar-day bucket the event belongs to.
func (e Event) Date() string {
	return e.Timestamp.UTC().Format(DateLayout)
}
