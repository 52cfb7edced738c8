package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// ZoneRepository handles database operations for zones
type ZoneRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewZoneRepository creates a new zone repository
func NewZoneRepository(db *sql.DB) *ZoneRepository {
	return &ZoneRepository{db: db, now: time.Now}
}

// GetZones returns every stored zone ordered by id. Geometry is not validated here.
func (r *ZoneRepository) GetZones(ctx context.Context) ([]models.Zone, error) {
	query := `SELECT id, name, kind, risk_level, buffer_meters, polygon_json, created_at
		FROM zones ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var (
			z         models.Zone
			polygon   string
			createdAt int64
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Kind, &z.RiskLevel, &z.BufferMeters, &polygon, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		if err := json.Unmarshal([]byte(polygon), &z.Polygon); err != nil {
			// surfaced to the catalog as a degenerate polygon
			z.Polygon = []spatial.Point{}
		}
		z.CreatedAt = database.UnixMilli(createdAt)
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// UpsertZones inserts or replaces zones in one transaction
func (r *ZoneRepository) UpsertZones(ctx context.Context, zones []models.Zone) error {
	query := `
		INSERT INTO zones (id, name, kind, risk_level, buffer_meters, polygon_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			risk_level = excluded.risk_level,
			buffer_meters = excluded.buffer_meters,
			polygon_json = excluded.polygon_json,
			updated_at = excluded.updated_at
	`
	now := r.now().UnixMilli()
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare zone upsert: %w", err)
		}
		defer stmt.Close()

		for _, z := range zones {
			polygon, err := json.Marshal(z.Polygon)
			if err != nil {
				return fmt.Errorf("failed to encode polygon for zone %s: %w", z.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, z.ID, z.Name, string(z.Kind), z.RiskLevel, z.BufferMeters, string(polygon), now, now); err != nil {
				return fmt.Errorf("failed to upsert zone %s: %w", z.ID, err)
			}
		}
		return nil
	})
}

// DeleteZone removes a zone
func (r *ZoneRepository) DeleteZone(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
