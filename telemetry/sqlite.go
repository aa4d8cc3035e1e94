package telemetry

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteRecorder writes every tick to a SQLite database. A run is registered the first time one
// of its ticks is recorded.
type SQLiteRecorder struct {
	db         *sql.DB
	configPath string
	logger     logging.Logger

	mu   sync.Mutex
	runs map[string]struct{}
}

// OpenDB opens (creating if needed) a telemetry database.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, multiClose(errors.Wrap(err, "creating telemetry schema"), db)
	}
	return db, nil
}

func multiClose(err error, db *sql.DB) error {
	if cerr := db.Close(); cerr != nil {
		return errors.Wrapf(err, "also failed to close database: %v", cerr)
	}
	return err
}

// NewSQLiteRecorder opens the database at path. configPath is stored with every run.
func NewSQLiteRecorder(path, configPath string, logger logging.Logger) (*SQLiteRecorder, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	logger.Infow("recording ticks", "path", path)
	return &SQLiteRecorder{db: db, configPath: configPath, logger: logger, runs: map[string]struct{}{}}, nil
}

func (r *SQLiteRecorder) registerRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; ok {
		return nil
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO runs (run_id, config_path) VALUES (?, ?)", runID, r.configPath); err != nil {
		return errors.Wrapf(err, "registering run %s", runID)
	}
	r.runs[runID] = struct{}{}
	r.logger.Debugw("registered run", "run_id", runID)
	return nil
}

// Record inserts one tick.
func (r *SQLiteRecorder) Record(ctx context.Context, rec TickRecord) error {
	if err := r.registerRun(ctx, rec.RunID); err != nil {
		return err
	}
	errJSON, err := json.Marshal(rec.Error)
	if err != nil {
		return err
	}
	jointsJSON, err := json.Marshal(rec.Joints)
	if err != nil {
		return err
	}
	speedsJSON, err := json.Marshal(rec.Speeds)
	if err != nil {
		return err
	}
	actual, waypoint, goal := rec.Actual.Point(), rec.Waypoint.Point(), rec.Goal.Point()
	_, err = r.db.ExecContext(ctx, `INSERT INTO ticks (
		run_id, tick, ts_unix_nanos, dt, phase, degraded, reason,
		actual_x, actual_y, actual_z, waypoint_x, waypoint_y, waypoint_z, goal_x, goal_y, goal_z,
		error_json, det, singular, joints_json, speeds_json, duration_ns
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Tick, rec.Time.UnixNano(), rec.DT, rec.Phase, rec.Degraded, rec.Reason,
		actual.X, actual.Y, actual.Z, waypoint.X, waypoint.Y, waypoint.Z, goal.X, goal.Y, goal.Z,
		string(errJSON), rec.Det, rec.Singular, string(jointsJSON), string(speedsJSON), rec.Duration.Nanoseconds(),
	)
	return errors.Wrapf(err, "recording tick %d", rec.Tick)
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

// TickRow is a tick as read back from the database.
type TickRow struct {
	Tick     uint64
	Time     time.Time
	Phase    string
	Degraded bool
	Actual   r3.Vector
	Waypoint r3.Vector
	Goal     r3.Vector
	Error    spatialmath.CartesianError
	Det      float64
	Singular bool
	Speeds   []float64
}

// LatestRunID returns the most recently started run.
func LatestRunID(ctx context.Context, db *sql.DB) (string, error) {
	var runID string
	err := db.QueryRowContext(ctx, "SELECT run_id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("no runs recorded")
	}
	return runID, err
}

// LoadTicks reads every tick of a run in order.
func LoadTicks(ctx context.Context, db *sql.DB, runID string) ([]TickRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT tick, ts_unix_nanos, phase, degraded,
		actual_x, actual_y, actual_z, waypoint_x, waypoint_y, waypoint_z, goal_x, goal_y, goal_z,
		error_json, det, singular, speeds_json
		FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var (
			row                 TickRow
			nanos               int64
			errJSON, speedsJSON string
		)
		if err := rows.Scan(&row.Tick, &nanos, &row.Phase, &row.Degraded,
			&row.Actual.X, &row.Actual.Y, &row.Actual.Z,
			&row.Waypoint.X, &row.Waypoint.Y, &row.Waypoint.Z,
			&row.Goal.X, &row.Goal.Y, &row.Goal.Z,
			&errJSON, &row.Det, &row.Singular, &speedsJSON,
		); err != nil {
			return nil, err
		}
		row.Time = time.Unix(0, nanos)
		if err := json.Unmarshal([]byte(errJSON), &row.Error); err != nil {
			return nil, errors.Wrapf(err, "tick %d error vector", row.Tick)
		}
		if err := json.Unmarshal([]byte(speedsJSON), &row.Speeds); err != nil {
			return nil, errors.Wrapf(err, "tick %d speeds", row.Tick)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
