// Package memory provides an in-memory report repository for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	reportsapp "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
)

// ReportRepository keeps all report data in process memory.
type ReportRepository struct {
	mu         sync.Mutex
	snapshots  []reports.Snapshot
	summaries  map[string]reports.DailySummary
	fuel       []reports.FuelEntry
	equipment  map[string]reports.EquipmentStatus
	nextFuelID int64
}

// NewReportRepository constructs an empty repository.
func NewReportRepository() *ReportRepository {
	return &ReportRepository{
		summaries:  make(map[string]reports.DailySummary),
		equipment:  make(map[string]reports.EquipmentStatus),
		nextFuelID: 1,
	}
}

func (r *ReportRepository) SaveSnapshot(_ context.Context, snapshot reports.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	return nil
}

func (r *ReportRepository) ListSnapshots(_ context.Context, deviceID, userName, date string) ([]reports.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reports.Snapshot
	for _, s := range r.snapshots {
		if s.DeviceID == deviceID && s.UserName == userName && s.Timestamp.UTC().Format(reports.DateLayout) == date {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *ReportRepository) ListSnapshotOwners(_ context.Context, date string) ([]reportsapp.SnapshotOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]reportsapp.SnapshotOwner)
	for _, s := range r.snapshots {
		if s.Timestamp.UTC().Format(reports.DateLayout) != date {
			continue
		}
		seen[s.DeviceID+"|"+s.UserName] = reportsapp.SnapshotOwner{DeviceID: s.DeviceID, UserName: s.UserName}
	}
	out := make([]reportsapp.SnapshotOwner, 0, len(seen))
	for _, owner := range seen {
		out = append(out, owner)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].UserName < out[j].UserName
	})
	return out, nil
}

func (r *ReportRepository) SaveSummary(_ context.Context, summary reports.DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[summary.DeviceID+"|"+summary.UserName+"|"+summary.Date] = summary
	return nil
}

func (r *ReportRepository) ListSummaries(_ context.Context, deviceID, userName, from, to string) ([]reports.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reports.DailySummary
	for _, s := range r.summaries {
		if s.DeviceID == deviceID && s.UserName == userName && s.Date >= from && s.Date <= to {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *ReportRepository) AddFuelEntry(_ context.Context, entry reports.FuelEntry) (*reports.FuelEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextFuelID
	r.nextFuelID++
	r.fuel = append(r.fuel, entry)
	stored := entry
	return &stored, nil
}

func (r *ReportRepository) ListFuelEntries(_ context.Context, filter reports.FuelFilter) ([]reports.FuelEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reports.FuelEntry
	for _, e := range r.fuel {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ReportRepository) UpsertEquipment(_ context.Context, status reports.EquipmentStatus) (*reports.EquipmentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.equipment[status.DeviceID+"|"+status.EquipmentID+"|"+status.Date] = status
	stored := status
	return &stored, nil
}

func (r *ReportRepository) ListEquipment(_ context.Context, deviceID, date string) ([]reports.EquipmentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reports.EquipmentStatus
	for _, s := range r.equipment {
		if s.DeviceID != deviceID {
			continue
		}
		if date != "" && s.Date != date {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].EquipmentID < out[j].EquipmentID
	})
	return out, nil
}
