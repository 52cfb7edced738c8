package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// ModelRepository persists published model snapshots and per-tourist baselines
type ModelRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *sql.DB) *ModelRepository {
	return &ModelRepository{db: db, now: time.Now}
}

// SaveSnapshot stores snap. Temporal snapshots also refresh tourist_baselines.
func (r *ModelRepository) SaveSnapshot(ctx context.Context, snap *models.ModelSnapshot) error {
	params, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT OR REPLACE INTO model_snapshots (kind, version, trained_at, sample_count, params_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, query,
			string(snap.Kind),
			snap.Version,
			snap.TrainedAt.UnixMilli(),
			snap.TrainingSampleCount,
			string(params),
			r.now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to save snapshot %s v%d: %w", snap.Kind, snap.Version, err)
		}

		if snap.Kind == models.ModelKindTemporal && snap.Temporal != nil {
			return r.saveBaselines(ctx, tx, snap.Version, snap.Temporal.Baselines)
		}
		return nil
	})
}

// LatestSnapshot returns the highest version stored for kind or models.ErrNotFound
func (r *ModelRepository) LatestSnapshot(ctx context.Context, kind models.ModelKind) (*models.ModelSnapshot, error) {
	query := `SELECT params_json FROM model_snapshots WHERE kind = ? ORDER BY version DESC LIMIT 1`

	var params string
	err := r.db.QueryRowContext(ctx, query, string(kind)).Scan(&params)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest %s snapshot: %w", kind, err)
	}

	snap := &models.ModelSnapshot{}
	if err := json.Unmarshal([]byte(params), snap); err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", kind, err)
	}
	return snap, nil
}

// PruneSnapshots keeps only the newest keep versions of kind
func (r *ModelRepository) PruneSnapshots(ctx context.Context, kind models.ModelKind, keep int) error {
	query := `
		DELETE FROM model_snapshots
		WHERE kind = ? AND version NOT IN (
			SELECT version FROM model_snapshots WHERE kind = ? ORDER BY version DESC LIMIT ?
		)
	`
	if _, err := r.db.ExecContext(ctx, query, string(kind), string(kind), keep); err != nil {
		return fmt.Errorf("failed to prune %s snapshots: %w", kind, err)
	}
	return nil
}

// ListSnapshots returns stored snapshot metadata for kind, newest first
func (r *ModelRepository) ListSnapshots(ctx context.Context, kind models.ModelKind) ([]models.SnapshotInfo, error) {
	query := `SELECT kind, version, trained_at, sample_count FROM model_snapshots WHERE kind = ? ORDER BY version DESC`

	rows, err := r.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotInfo
	for rows.Next() {
		var (
			info      models.SnapshotInfo
			trainedAt int64
		)
		if err := rows.Scan(&info.Kind, &info.Version, &trainedAt, &info.TrainingSampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot info: %w", err)
		}
		info.TrainedAt = database.UnixMilli(trainedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// GetTouristBaseline returns the last persisted baseline of touristID or models.ErrNotFound
func (r *ModelRepository) GetTouristBaseline(ctx context.Context, touristID string) (*models.Baseline, error) {
	query := `SELECT tourist_id, means_json, variances_json, sample_count, last_seen, updated_at
		FROM tourist_baselines WHERE tourist_id = ?`

	var (
		b                 models.Baseline
		means, variances  string
		lastSeen, updated int64
	)
	err := r.db.QueryRowContext(ctx, query, touristID).Scan(&b.TouristID, &means, &variances, &b.SampleCount, &lastSeen, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	if err := json.Unmarshal([]byte(means), &b.Means); err != nil {
		return nil, fmt.Errorf("failed to decode baseline means: %w", err)
	}
	if err := json.Unmarshal([]byte(variances), &b.Variances); err != nil {
		return nil, fmt.Errorf("failed to decode baseline variances: %w", err)
	}
	b.LastSeen = database.UnixMilli(lastSeen)
	b.UpdatedAt = database.UnixMilli(updated)
	return &b, nil
}

func (r *ModelRepository) saveBaselines(ctx context.Context, tx *sql.Tx, version uint64, baselines map[string]models.Baseline) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tourist_baselines (tourist_id, means_json, variances_json, sample_count, last_seen, model_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tourist_id) DO UPDATE SET
			means_json = excluded.means_json,
			variances_json = excluded.variances_json,
			sample_count = excluded.sample_count,
			last_seen = excluded.last_seen,
			model_version = excluded.model_version,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare baseline upsert: %w", err)
	}
	defer stmt.Close()

	for id, b := range baselines {
		means, err := json.Marshal(b.Means)
		if err != nil {
			return err
		}
		variances, err := json.Marshal(b.Variances)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, string(means), string(variances), b.SampleCount,
			b.LastSeen.UnixMilli(), version, b.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to save baseline for %s: %w", id, err)
		}
	}
	return nil
}
