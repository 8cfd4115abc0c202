package application

import (
	"context"
	"errors"
	"log"
	"time"

	reports "plantops-cloud/internal/reports/domain"
)

// Repository persists snapshots, rollups, fuel entries and equipment
// records.
type Repository interface {
	SaveSnapshot(ctx context.Context, snapshot reports.Snapshot) error
	ListSnapshots(ctx context.Context, deviceID, userName, date string) ([]reports.Snapshot, error)
	ListSnapshotOwners(ctx context.Context, date string) ([]SnapshotOwner, error)

	SaveSummary(ctx context.Context, summary reports.DailySummary) error
	ListSummaries(ctx context.Context, deviceID, userName, from, to string) ([]reports.DailySummary, error)

	AddFuelEntry(ctx context.Context, entry reports.FuelEntry) (*reports.FuelEntry, error)
	ListFuelEntries(ctx context.Context, filter reports.FuelFilter) ([]reports.FuelEntry, error)

	UpsertEquipment(ctx context.Context, status reports.EquipmentStatus) (*reports.EquipmentStatus, error)
	ListEquipment(ctx context.Context, deviceID, date string) ([]reports.EquipmentStatus, error)
}

// SnapshotOwner identifies one (device, user) pair with snapshots on a
// day.
type SnapshotOwner struct {
	DeviceID string
	UserName string
}

// Service is the reporting façade. SaveSnapshot is fed by the ingest
// adapter; RollupDate runs on the daily schedule.
type Service struct {
	repo   Repository
	logger *log.Logger
}

// NewService constructs a report service.
func NewService(repo Repository, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("reports: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, logger: logger}, nil
}

// SaveSnapshot stores one meter reading.
func (s *Service) SaveSnapshot(ctx context.Context, deviceID, userName string, ts time.Time, energyKWh, fuelLitres float64) error {
	if deviceID == "" {
		return errors.New("reports: device id required")
	}
	return s.repo.SaveSnapshot(ctx, reports.Snapshot{
		DeviceID:   deviceID,
		UserName:   userName,
		Timestamp:  ts.UTC(),
		EnergyKWh:  energyKWh,
		FuelLitres: fuelLitres,
	})
}

// RollupDay summarizes one device/user/day and stores the result.
func (s *Service) RollupDay(ctx context.Context, deviceID, userName, date string) (*reports.DailySummary, error) {
	snapshots, err := s.repo.ListSnapshots(ctx, deviceID, userName, date)
	if err != nil {
		return nil, err
	}
	summary, err := reports.SummarizeDay(deviceID, userName, date, snapshots)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveSummary(ctx, summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// RollupDate rolls up every device/user pair that reported snapshots on
// the given day. Per-pair failures are logged and do not stop the rest.
func (s *Service) RollupDate(ctx context.Context, date string) error {
	if _, err := time.Parse(reports.DateLayout, date); err != nil {
		return errors.New("reports: invalid rollup date")
	}
	owners, err := s.repo.ListSnapshotOwners(ctx, date)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if _, err := s.RollupDay(ctx, owner.DeviceID, owner.UserName, date); err != nil {
			s.logger.Printf("reports: rollup %s/%s %s: %v", owner.DeviceID, owner.UserName, date, err)
		}
	}
	return nil
}

// Consumption lists stored daily summaries in a date range.
func (s *Service) Consumption(ctx context.Context, deviceID, userName, from, to string) ([]reports.DailySummary, error) {
	if deviceID == "" || userName == "" || from == "" || to == "" {
		return nil, errors.New("reports: device id, user name, from and to required")
	}
	summaries, err := s.repo.ListSummaries(ctx, deviceID, userName, from, to)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []reports.DailySummary{}
	}
	return summaries, nil
}

// AddFuelEntry validates and stores one fuel log line.
func (s *Service) AddFuelEntry(ctx context.Context, entry reports.FuelEntry) (*reports.FuelEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entry.CreatedAt = time.Now().UTC()
	return s.repo.AddFuelEntry(ctx, entry)
}

// ListFuelEntries lists the fuel log through a filter.
func (s *Service) ListFuelEntries(ctx context.Context, filter reports.FuelFilter) ([]reports.FuelEntry, error) {
	entries, err := s.repo.ListFuelEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []reports.FuelEntry{}
	}
	return entries, nil
}

// UpsertEquipment stores one equipment condition record, replacing any
// earlier record for the same (device, equipment, date).
func (s *Service) UpsertEquipment(ctx context.Context, status reports.EquipmentStatus) (*reports.EquipmentStatus, error) {
	if err := status.Validate(); err != nil {
		return nil, err
	}
	status.UpdatedAt = time.Now().UTC()
	return s.repo.UpsertEquipment(ctx, status)
}

// ListEquipment lists equipment records for one device, optionally on
// one day.
func (s *Service) ListEquipment(ctx context.Context, deviceID, date string) ([]reports.EquipmentStatus, error) {
	if deviceID == "" {
		return nil, errors.New("reports: device id required")
	}
	statuses, err := s.repo.ListEquipment(ctx, deviceID, date)
	if err != nil {
		return nil, err
	}
	if statuses == nil {
		statuses = []reports.EquipmentStatus{}
	}
	return statuses, nil
}
