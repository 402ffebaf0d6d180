package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mount_modeling/internal/models"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("model run not found")

type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite {
	return &RunSQLite{db: db}
}

var _ RunRepo = (*RunSQLite)(nil)

const (
	upsertRunSQL = `
		INSERT INTO model_runs (id, kind, image_dir, result_file, keep_images, cancelled, committed, failed, message, points, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result_file=excluded.result_file,
			cancelled=excluded.cancelled,
			committed=excluded.committed,
			failed=excluded.failed,
			message=excluded.message,
			points=excluded.points,
			finished_at=excluded.finished_at
	`
	deleteRunPointsSQL = `DELETE FROM run_points WHERE run_id = ?`
	insertRunPointSQL  = `INSERT INTO run_points (run_id, idx, solved, committed, data) VALUES (?, ?, ?, ?, ?)`

	runColumns      = `id, kind, image_dir, result_file, keep_images, cancelled, committed, failed, message, points, started_at, finished_at`
	selectRunSQL    = `SELECT ` + runColumns + ` FROM model_runs WHERE id = ?`
	listRunsSQL     = `SELECT ` + runColumns + ` FROM model_runs ORDER BY started_at DESC LIMIT ?`
	selectPointsSQL = `SELECT data FROM run_points WHERE run_id = ? ORDER BY idx ASC`

	lastCommittedRunSQL = `SELECT id FROM model_runs WHERE kind = ? AND committed > 0 ORDER BY started_at DESC LIMIT 1`
	committedPointsSQL  = `SELECT data FROM run_points WHERE run_id = ? AND committed = 1 ORDER BY idx ASC`

	defaultListLimit = 50
)

// Save writes the run row and replaces its point results in one transaction.
func (r *RunSQLite) Save(ctx context.Context, run models.ModelRun) error {
	points, err := json.Marshal(run.Points)
	if err != nil {
		return fmt.Errorf("encode target points: %w", err)
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	var finished *string
	if !run.FinishedAt.IsZero() {
		s := run.FinishedAt.UTC().Format(timestampLayout)
		finished = &s
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertRunSQL,
		run.ID,
		string(run.Kind),
		run.ImageDir,
		run.ResultFile,
		run.KeepImages,
		run.Cancelled,
		run.Committed,
		run.Failed,
		run.Message,
		string(points),
		started.UTC().Format(timestampLayout),
		finished,
	); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx, deleteRunPointsSQL, run.ID); err != nil {
		return fmt.Errorf("clear points of run %s: %w", run.ID, err)
	}
	for _, res := range run.Results {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode point %d: %w", res.Index, err)
		}
		if _, err := tx.ExecContext(ctx, insertRunPointSQL, run.ID, res.Index, res.Solved, res.Committed, string(data)); err != nil {
			return fmt.Errorf("insert point %d of run %s: %w", res.Index, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.ModelRun, error) {
	var (
		run      models.ModelRun
		kind     string
		result   sql.NullString
		message  sql.NullString
		points   sql.NullString
		finished sql.NullTime
	)
	if err := row.Scan(
		&run.ID,
		&kind,
		&run.ImageDir,
		&result,
		&run.KeepImages,
		&run.Cancelled,
		&run.Committed,
		&run.Failed,
		&message,
		&points,
		&run.StartedAt,
		&finished,
	); err != nil {
		return models.ModelRun{}, err
	}
	run.Kind = models.RunKind(kind)
	run.ResultFile = result.String
	run.Message = message.String
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	if points.Valid && points.String != "" {
		if err := json.Unmarshal([]byte(points.String), &run.Points); err != nil {
			return models.ModelRun{}, fmt.Errorf("decode target points of run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

// Get loads a run with all its point results.
func (r *RunSQLite) Get(ctx context.Context, id string) (models.ModelRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRunSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ModelRun{}, ErrRunNotFound
		}
		return models.ModelRun{}, fmt.Errorf("select run %s: %w", id, err)
	}
	results, err := r.points(ctx, selectPointsSQL, id)
	if err != nil {
		return models.ModelRun{}, err
	}
	run.Results = results
	return run, nil
}

// List returns the newest runs first, without point results.
func (r *RunSQLite) List(ctx context.Context, limit int) ([]models.ModelRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.ModelRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunSQLite) LastCommitted(ctx context.Context, kind models.RunKind) ([]models.PointResult, error) {
	var id string
	err := r.db.QueryRowContext(ctx, lastCommittedRunSQL, string(kind)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select last %s run: %w", kind, err)
	}
	return r.points(ctx, committedPointsSQL, id)
}

func (r *RunSQLite) points(ctx context.Context, query, runID string) ([]models.PointResult, error) {
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("select points of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []models.PointResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan point of run %s: %w", runID, err)
		}
		var res models.PointResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			return nil, fmt.Errorf("decode point of run %s: %w", runID, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
