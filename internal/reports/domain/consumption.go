package domain

import (
	"errors"
	"sort"
	"time"
)

// DateLayout is the day-bucket key format.
const DateLayout = "2006-01-02"

// Snapshot is one meter reading carried alongside actuator telemetry.
type Snapshot struct {
	DeviceID   string    `json:"deviceId"`
	UserName   string    `json:"userName"`
	Timestamp  time.Time `json:"timestamp"`
	EnergyKWh  float64   `json:"energyKwh"`
	FuelLitres float64   `json:"fuelLitres"`
}

// DailySummary is the per-day consumption rollup for one device and
// user.
type DailySummary struct {
	DeviceID   string  `json:"deviceId"`
	UserName   string  `json:"userName"`
	Date       string  `json:"date"`
	EnergyKWh  float64 `json:"energyKwh"`
	FuelLitres float64 `json:"fuelLitres"`
	Samples    int     `json:"samples"`
}

// ErrNoSnapshots is returned when a day has nothing to summarize.
var ErrNoSnapshots = errors.New("reports: no snapshots for day")

// SummarizeDay folds one day of snapshots into a summary. Energy is an
// accumulating register, so the day's consumption is last minus first.
// Fuel is a depleting tank level, so it is first minus last. The two
// signs are opposite on purpose.
func SummarizeDay(deviceID, userName, date string, snapshots []Snapshot) (DailySummary, error) {
	if len(snapshots) == 0 {
		return DailySummary{}, ErrNoSnapshots
	}
	ordered := make([]Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	first, last := ordered[0], ordered[len(ordered)-1]
	return DailySummary{
		DeviceID:   deviceID,
		UserName:   userName,
		Date:       date,
		EnergyKWh:  last.EnergyKWh - first.EnergyKWh,
		FuelLitres: first.FuelLitres - last.FuelLitres,
		Samples:    len(ordered),
	}, nil
}
