// Package postgres persists report data in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	reportsapp "plantops-cloud/internal/reports/application"
	reports "plantops-cloud/internal/reports/domain"
)

// ReportRepository stores snapshots, rollups, fuel entries and
// equipment records.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository constructs a repository.
func NewReportRepository(db *sql.DB) (*ReportRepository, error) {
	if db == nil {
		return nil, errors.New("report repo: nil db")
	}
	return &ReportRepository{db: db}, nil
}

func (r *ReportRepository) SaveSnapshot(ctx context.Context, snapshot reports.Snapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consumption_snapshots (device_id, user_name, ts, energy_kwh, fuel_litres)
		VALUES ($1, $2, $3, $4, $5)
	`, snapshot.DeviceID, snapshot.UserName, snapshot.Timestamp, snapshot.EnergyKWh, snapshot.FuelLitres)
	if err != nil {
		return fmt.Errorf("report repo: save snapshot: %w", err)
	}
	return nil
}

func (r *ReportRepository) ListSnapshots(ctx context.Context, deviceID, userName, date string) ([]reports.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, user_name, ts, energy_kwh, fuel_litres
		FROM consumption_snapshots
		WHERE device_id = $1 AND user_name = $2 AND (ts AT TIME ZONE 'UTC')::date = $3::date
		ORDER BY ts
	`, deviceID, userName, date)
	if err != nil {
		return nil, fmt.Errorf("report repo: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []reports.Snapshot
	for rows.Next() {
		var s reports.Snapshot
		if err := rows.Scan(&s.DeviceID, &s.UserName, &s.Timestamp, &s.EnergyKWh, &s.FuelLitres); err != nil {
			return nil, fmt.Errorf("report repo: scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ReportRepository) ListSnapshotOwners(ctx context.Context, date string) ([]reportsapp.SnapshotOwner, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT device_id, user_name
		FROM consumption_snapshots
		WHERE (ts AT TIME ZONE 'UTC')::date = $1::date
		ORDER BY device_id, user_name
	`, date)
	if err != nil {
		return nil, fmt.Errorf("report repo: list snapshot owners: %w", err)
	}
	defer rows.Close()

	var out []reportsapp.SnapshotOwner
	for rows.Next() {
		var owner reportsapp.SnapshotOwner
		if err := rows.Scan(&owner.DeviceID, &owner.UserName); err != nil {
			return nil, fmt.Errorf("report repo: scan owner: %w", err)
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

func (r *ReportRepository) SaveSummary(ctx context.Context, summary reports.DailySummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consumption_daily (device_id, user_name, day, energy_kwh, fuel_litres, samples)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id, user_name, day) DO UPDATE SET
			energy_kwh = EXCLUDED.energy_kwh,
			fuel_litres = EXCLUDED.fuel_litres,
			samples = EXCLUDED.samples
	`, summary.DeviceID, summary.UserName, summary.Date, summary.EnergyKWh, summary.FuelLitres, summary.Samples)
	if err != nil {
		return fmt.Errorf("report repo: save summary: %w", err)
	}
	return nil
}

func (r *ReportRepository) ListSummaries(ctx context.Context, deviceID, userName, from, to string) ([]reports.DailySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, user_name, to_char(day, 'YYYY-MM-DD'), energy_kwh, fuel_litres, samples
		FROM consumption_daily
		WHERE device_id = $1 AND user_name = $2 AND day BETWEEN $3::date AND $4::date
		ORDER BY day
	`, deviceID, userName, from, to)
	if err != nil {
		return nil, fmt.Errorf("report repo: list summaries: %w", err)
	}
	defer rows.Close()

	var out []reports.DailySummary
	for rows.Next() {
		var s reports.DailySummary
		if err := rows.Scan(&s.DeviceID, &s.UserName, &s.Date, &s.EnergyKWh, &s.FuelLitres, &s.Samples); err != nil {
			return nil, fmt.Errorf("report repo: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ReportRepository) AddFuelEntry(ctx context.Context, entry reports.FuelEntry) (*reports.FuelEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO fuel_entries (device_id, user_name, entry_type, fuel_type, litres, day, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, entry.DeviceID, entry.UserName, entry.EntryType, entry.FuelType, entry.Litres, entry.Date, entry.Notes, entry.CreatedAt)
	if err := row.Scan(&entry.ID); err != nil {
		return nil, fmt.Errorf("report repo: add fuel entry: %w", err)
	}
	return &entry, nil
}

func (r *ReportRepository) ListFuelEntries(ctx context.Context, filter reports.FuelFilter) ([]reports.FuelEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, user_name, entry_type, fuel_type, litres, to_char(day, 'YYYY-MM-DD'), notes, created_at
		FROM fuel_entries
		WHERE ($1 = '' OR device_id = $1)
		  AND ($2 = '' OR entry_type = $2)
		  AND ($3 = '' OR fuel_type = $3)
		  AND ($4 = '' OR day >= $4::date)
		  AND ($5 = '' OR day <= $5::date)
		ORDER BY day, id
	`, filter.DeviceID, filter.EntryType, filter.FuelType, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("report repo: list fuel entries: %w", err)
	}
	defer rows.Close()

	var out []reports.FuelEntry
	for rows.Next() {
		var e reports.FuelEntry
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.UserName, &e.EntryType, &e.FuelType, &e.Litres, &e.Date, &notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("report repo: scan fuel entry: %w", err)
		}
		e.Notes = notes.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ReportRepository) UpsertEquipment(ctx context.Context, status reports.EquipmentStatus) (*reports.EquipmentStatus, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO equipment_statuses (device_id, equipment_id, name, condition, day, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, equipment_id, day) DO UPDATE SET
			name = EXCLUDED.name,
			condition = EXCLUDED.condition,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`, status.DeviceID, status.EquipmentID, status.Name, status.Condition, status.Date, status.Notes, status.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("report repo: upsert equipment: %w", err)
	}
	return &status, nil
}

func (r *ReportRepository) ListEquipment(ctx context.Context, deviceID, date string) ([]reports.EquipmentStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, equipment_id, name, condition, to_char(day, 'YYYY-MM-DD'), notes, updated_at
		FROM equipment_statuses
		WHERE device_id = $1 AND ($2 = '' OR day = $2::date)
		ORDER BY day, equipment_id
	`, deviceID, date)
	if err != nil {
		return nil, fmt.Errorf("report repo: list equipment: %w", err)
	}
	defer rows.Close()

	var out []reports.EquipmentStatus
	for rows.Next() {
		var s reports.EquipmentStatus
		var notes sql.NullString
		if err := rows.Scan(&s.DeviceID, &s.EquipmentID, &s.Name, &s.Condition, &s.Date, &notes, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("report repo: scan equipment: %w", err)
		}
		s.Notes = notes.String
		out = append(out, s)
	}
	return out, rows.Err()
}
