package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	devicestate "plantops-cloud/internal/devicestate/domain"
)

const (
	defaultPumpTable  = "pump_states"
	defaultValveTable = "valve_states"
)

// StateRepository is a Postgres implementation of the actuator state
// store. One instance serves one kind; the table option selects the
// collection (pump_states or valve_states).
type StateRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*StateRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *StateRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewPumpStateRepository constructs a repository over pump_states.
func NewPumpStateRepository(db *sql.DB, opts ...RepositoryOption) *StateRepository {
	return newRepository(db, defaultPumpTable, opts...)
}

// NewValveStateRepository constructs a repository over valve_states.
func NewValveStateRepository(db *sql.DB, opts ...RepositoryOption) *StateRepository {
	return newRepository(db, defaultValveTable, opts...)
}

func newRepository(db *sql.DB, table string, opts ...RepositoryOption) *StateRepository {
	repo := &StateRepository{db: db, table: table}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SetPending flips the pending flag in one upsert. Confirmed status is
// untouched for existing rows and defaults to OFF for new ones, so a
// command against an unseen actuator creates the row pending but OFF.
func (r *StateRepository) SetPending(ctx context.Context, deviceID, actuatorID string, pending bool, now time.Time) (*devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (device_id, actuator_id, status, pending, last_updated)
VALUES ($1, $2, FALSE, $3, $4)
ON CONFLICT (device_id, actuator_id)
DO UPDATE SET pending = EXCLUDED.pending, last_updated = EXCLUDED.last_updated
RETURNING device_id, actuator_id, status, pending, last_updated`, r.table)
	row := r.db.QueryRowContext(ctx, query, deviceID, actuatorID, pending, now.UTC())
	return scanState(row)
}

// Confirm adopts the observed status and clears pending in one upsert.
func (r *StateRepository) Confirm(ctx context.Context, deviceID, actuatorID string, status bool, now time.Time) (*devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (device_id, actuator_id, status, pending, last_updated)
VALUES ($1, $2, $3, FALSE, $4)
ON CONFLICT (device_id, actuator_id)
DO UPDATE SET status = EXCLUDED.status, pending = FALSE, last_updated = EXCLUDED.last_updated
RETURNING device_id, actuator_id, status, pending, last_updated`, r.table)
	row := r.db.QueryRowContext(ctx, query, deviceID, actuatorID, status, now.UTC())
	return scanState(row)
}

// Upsert sets status and pending together.
func (r *StateRepository) Upsert(ctx context.Context, deviceID, actuatorID string, status, pending bool, now time.Time) (*devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (device_id, actuator_id, status, pending, last_updated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (device_id, actuator_id)
DO UPDATE SET status = EXCLUDED.status, pending = EXCLUDED.pending, last_updated = EXCLUDED.last_updated
RETURNING device_id, actuator_id, status, pending, last_updated`, r.table)
	row := r.db.QueryRowContext(ctx, query, deviceID, actuatorID, status, pending, now.UTC())
	return scanState(row)
}

// Get returns nil when no record exists; absence is not an error.
func (r *StateRepository) Get(ctx context.Context, deviceID, actuatorID string) (*devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_id, actuator_id, status, pending, last_updated
FROM %s
WHERE device_id = $1 AND actuator_id = $2`, r.table)
	row := r.db.QueryRowContext(ctx, query, deviceID, actuatorID)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}

// ListByDevice lists states for a device, ordered by actuator id.
func (r *StateRepository) ListByDevice(ctx context.Context, deviceID string) ([]devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT device_id, actuator_id, status, pending, last_updated
FROM %s
WHERE device_id = $1
ORDER BY actuator_id`, r.table)
	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make([]devicestate.State, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// ClearPendingBefore clears stale pending flags in one statement and
// returns the affected states.
func (r *StateRepository) ClearPendingBefore(ctx context.Context, before time.Time) ([]devicestate.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET pending = FALSE
WHERE pending AND last_updated < $1
RETURNING device_id, actuator_id, status, pending, last_updated`, r.table)
	rows, err := r.db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make([]devicestate.State, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*devicestate.State, error) {
	var state devicestate.State
	if err := row.Scan(
		&state.DeviceID,
		&state.ActuatorID,
		&state.Status,
		&state.Pending,
		&state.LastUpdated,
	); err != nil {
		return nil, err
	}
	state.LastUpdated = state.LastUpdated.UTC()
	return &state, nil
}
