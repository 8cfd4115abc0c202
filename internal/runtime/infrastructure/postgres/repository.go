package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	runtime "plantops-cloud/internal/runtime/domain"
)

const defaultRuntimeTable = "actuator_runtime_daily"

// RuntimeRepository is a Postgres implementation of the daily runtime store.
type RuntimeRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RuntimeRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *RuntimeRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewRuntimeRepository constructs a repository.
func NewRuntimeRepository(db *sql.DB, opts ...RepositoryOption) *RuntimeRepository {
	repo := &RuntimeRepository{db: db, table: defaultRuntimeTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Apply folds one event into the day bucket as a single upsert, so the
// load-fold-store race window collapses to the database's own row-level
// atomicity. The SQL mirrors runtime.Record.Apply: ON keeps the first
// last_on_time, OFF adds only a positive delta and always clears it.
func (r *RuntimeRepository) Apply(ctx context.Context, event runtime.Event) (*runtime.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("runtime repo: nil db")
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	var query string
	switch event.Status {
	case runtime.StatusOn:
		query = fmt.Sprintf(`
INSERT INTO %s (device_id, user_name, actuator_id, actuator_name, date, total_runtime_ms, last_on_time)
VALUES ($1, $2, $3, $4, $5, 0, $6)
ON CONFLICT (device_id, user_name, actuator_id, date)
DO UPDATE SET
	actuator_name = EXCLUDED.actuator_name,
	last_on_time = COALESCE(%s.last_on_time, EXCLUDED.last_on_time)
RETURNING device_id, user_name, actuator_id, actuator_name, date, total_runtime_ms, last_on_time`, r.table, r.table)
	case runtime.StatusOff:
		query = fmt.Sprintf(`
INSERT INTO %s (device_id, user_name, actuator_id, actuator_name, date, total_runtime_ms, last_on_time)
VALUES ($1, $2, $3, $4, $5, 0, NULL)
ON CONFLICT (device_id, user_name, actuator_id, date)
DO UPDATE SET
	actuator_name = EXCLUDED.actuator_name,
	total_runtime_ms = %s.total_runtime_ms + GREATEST(
		0,
		COALESCE((EXTRACT(EPOCH FROM ($6::timestamptz - %s.last_on_time)) * 1000)::bigint, 0)
	),
	last_on_time = NULL
RETURNING device_id, user_name, actuator_id, actuator_name, date, total_runtime_ms, last_on_time`, r.table, r.table, r.table)
	default:
		return nil, runtime.ErrInvalidStatus
	}

	row := r.db.QueryRowContext(ctx, query,
		event.DeviceID,
		event.UserName,
		event.ActuatorID,
		event.ActuatorName,
		event.Date(),
		event.Timestamp.UTC(),
	)
	return scanRecord(row)
}

// ListForDate lists records for one device, user and day.
func (r *RuntimeRepository) ListForDate(ctx context.Context, deviceID, userName, date string) ([]runtime.Record, error) {
	return r.ListRange(ctx, deviceID, userName, date, date, "")
}

// ListRange lists records in an inclusive date range, ordered by date
// then actuator name. Dates are stored as YYYY-MM-DD text, so the range
// predicate is plain string comparison.
func (r *RuntimeRepository) ListRange(ctx context.Context, deviceID, userName, from, to, actuatorID string) ([]runtime.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("runtime repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT device_id, user_name, actuator_id, actuator_name, date, total_runtime_ms, last_on_time
FROM %s
WHERE device_id = $1 AND user_name = $2 AND date >= $3 AND date <= $4
	AND ($5 = '' OR actuator_id = $5)
ORDER BY date, actuator_name`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceID, userName, from, to, actuatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]runtime.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListActuators returns the distinct actuators seen for a device and user.
func (r *RuntimeRepository) ListActuators(ctx context.Context, deviceID, userName string) ([]runtime.Actuator, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("runtime repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT actuator_id, actuator_name
FROM %s
WHERE device_id = $1 AND user_name = $2
ORDER BY actuator_name`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceID, userName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actuators := make([]runtime.Actuator, 0)
	for rows.Next() {
		var a runtime.Actuator
		if err := rows.Scan(&a.ActuatorID, &a.ActuatorName); err != nil {
			return nil, err
		}
		actuators = append(actuators, a)
	}
	return actuators, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*runtime.Record, error) {
	var rec runtime.Record
	var lastOn sql.NullTime
	if err := row.Scan(
		&rec.DeviceID,
		&rec.UserName,
		&rec.ActuatorID,
		&rec.ActuatorName,
		&rec.Date,
		&rec.TotalRuntimeMs,
		&lastOn,
	); err != nil {
		return nil, err
	}
	if lastOn.Valid {
		t := lastOn.Time.UTC()
		rec.LastOnTime = &t
	}
	return &rec, nil
}
