package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// Page sizes for ListRuns
const (
	DefaultRunLimit = 50
	MaxRunLimit     = 500
)

// TrainingRunFilter selects training runs
type TrainingRunFilter struct {
	Kind   models.ModelKind
	Status string
	Limit  int
}

// ClampRunLimit maps a requested page size onto [1, MaxRunLimit]; values below 1 take the default
func ClampRunLimit(n int) int {
	switch {
	case n < 1:
		return DefaultRunLimit
	case n > MaxRunLimit:
		return MaxRunLimit
	}
	return n
}

// TrainingRunRepository handles database operations for training runs
type TrainingRunRepository struct {
	db *sql.DB
}

// NewTrainingRunRepository creates a new training run repository
func NewTrainingRunRepository(db *sql.DB) *TrainingRunRepository {
	return &TrainingRunRepository{db: db}
}

// StartRun records a run that has just begun
func (r *TrainingRunRepository) StartRun(ctx context.Context, run *models.TrainingRun) error {
	query := `
		INSERT INTO training_runs (id, kind, trigger_source, status, sample_count, version, error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		string(run.Kind),
		run.Trigger,
		run.Status,
		run.SampleCount,
		run.Version,
		run.ErrorMessage,
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run
func (r *TrainingRunRepository) FinishRun(ctx context.Context, run *models.TrainingRun) error {
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixMilli(), Valid: true}
	}

	query := `
		UPDATE training_runs
		SET status = ?, sample_count = ?, version = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query, run.Status, run.SampleCount, run.Version, run.ErrorMessage, finished, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update training run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("training run %s: %w", run.ID, models.ErrNotFound)
	}
	return nil
}

// ListRuns returns runs matching filter, newest first
func (r *TrainingRunRepository) ListRuns(ctx context.Context, filter TrainingRunFilter) ([]models.TrainingRun, error) {
	query := `SELECT id, kind, trigger_source, status, sample_count, version, error_message, started_at, finished_at
		FROM training_runs`

	var conditions []string
	var args []interface{}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	filter.Limit = ClampRunLimit(filter.Limit)
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []models.TrainingRun
	for rows.Next() {
		var (
			run      models.TrainingRun
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Trigger, &run.Status, &run.SampleCount, &run.Version,
			&run.ErrorMessage, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		run.StartedAt = database.UnixMilli(started)
		run.FinishedAt = database.NullUnixMilli(finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
