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

// RouteRepository handles planned routes
type RouteRepository struct {
	db *sql.DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *sql.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// PlannedRoute returns the route of touristID or models.ErrNotFound
func (r *RouteRepository) PlannedRoute(ctx context.Context, touristID string) (*models.PlannedRoute, error) {
	query := `SELECT tourist_id, name, waypoints_json, updated_at FROM planned_routes WHERE tourist_id = ?`

	route, err := scanRoute(r.db.QueryRowContext(ctx, query, touristID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get planned route: %w", err)
	}
	return route, nil
}

// PlannedRoutes returns every planned route keyed by tourist
func (r *RouteRepository) PlannedRoutes(ctx context.Context) (map[string]models.PlannedRoute, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tourist_id, name, waypoints_json, updated_at FROM planned_routes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query planned routes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.PlannedRoute)
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan planned route: %w", err)
		}
		out[route.TouristID] = *route
	}
	return out, rows.Err()
}

// SaveRoute inserts or replaces a tourist's route
func (r *RouteRepository) SaveRoute(ctx context.Context, route *models.PlannedRoute) error {
	waypoints, err := json.Marshal(route.Waypoints)
	if err != nil {
		return fmt.Errorf("failed to encode waypoints: %w", err)
	}
	if route.UpdatedAt.IsZero() {
		route.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO planned_routes (tourist_id, name, waypoints_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tourist_id) DO UPDATE SET
			name = excluded.name,
			waypoints_json = excluded.waypoints_json,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, route.TouristID, route.Name, string(waypoints), route.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to save planned route: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(row rowScanner) (*models.PlannedRoute, error) {
	var (
		route     models.PlannedRoute
		waypoints string
		updatedAt int64
	)
	if err := row.Scan(&route.TouristID, &route.Name, &waypoints, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(waypoints), &route.Waypoints); err != nil {
		return nil, fmt.Errorf("decode waypoints: %w", err)
	}
	route.UpdatedAt = database.UnixMilli(updatedAt)
	return &route, nil
}
