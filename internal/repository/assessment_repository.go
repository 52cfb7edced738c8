package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// AssessmentRepository stores assessment results and the alerts raised from them
type AssessmentRepository struct {
	db *sql.DB
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// SaveAssessment stores a result. Features and the alert are not persisted with it.
func (r *AssessmentRepository) SaveAssessment(ctx context.Context, a *models.AssessmentResult) error {
	versions, err := json.Marshal(a.ModelVersions)
	if err != nil {
		return fmt.Errorf("failed to encode model versions: %w", err)
	}
	degraded := []byte("[]")
	if len(a.Degraded) > 0 {
		if degraded, err = json.Marshal(a.Degraded); err != nil {
			return fmt.Errorf("failed to encode degraded list: %w", err)
		}
	}
	var locationID sql.NullInt64
	if a.LocationRef > 0 {
		locationID = sql.NullInt64{Int64: a.LocationRef, Valid: true}
	}

	query := `
		INSERT INTO assessments (
			id, tourist_id, location_id, latitude, longitude, safety_score, severity,
			zone_violation, zone_id, anomaly_score, is_anomalous, temporal_risk_score, confidence,
			model_versions_json, degraded_json, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID,
		a.TouristID,
		locationID,
		a.Latitude,
		a.Longitude,
		a.SafetyScore,
		string(a.Severity),
		a.ZoneViolation,
		a.ZoneID,
		a.AnomalyScore,
		a.IsAnomalous,
		a.TemporalRiskScore,
		a.Confidence,
		string(versions),
		string(degraded),
		a.ComputedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment: %w", err)
	}
	return nil
}

// LatestAssessment returns the most recent result for touristID or models.ErrNotFound
func (r *AssessmentRepository) LatestAssessment(ctx context.Context, touristID string) (*models.AssessmentResult, error) {
	query := `
		SELECT id, tourist_id, location_id, latitude, longitude, safety_score, severity,
			   zone_violation, zone_id, anomaly_score, is_anomalous, temporal_risk_score, confidence,
			   model_versions_json, degraded_json, computed_at
		FROM assessments
		WHERE tourist_id = ?
		ORDER BY computed_at DESC
		LIMIT 1
	`
	var (
		a          models.AssessmentResult
		locationID sql.NullInt64
		versions   string
		degraded   string
		computedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, touristID).Scan(
		&a.ID, &a.TouristID, &locationID, &a.Latitude, &a.Longitude, &a.SafetyScore, &a.Severity,
		&a.ZoneViolation, &a.ZoneID, &a.AnomalyScore, &a.IsAnomalous, &a.TemporalRiskScore, &a.Confidence,
		&versions, &degraded, &computedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest assessment: %w", err)
	}

	if err := json.Unmarshal([]byte(versions), &a.ModelVersions); err != nil {
		return nil, fmt.Errorf("failed to decode model versions: %w", err)
	}
	if err := json.Unmarshal([]byte(degraded), &a.Degraded); err != nil {
		return nil, fmt.Errorf("failed to decode degraded list: %w", err)
	}
	if len(a.Degraded) == 0 {
		a.Degraded = nil
	}
	a.LocationRef = locationID.Int64
	a.ComputedAt = database.UnixMilli(computedAt)
	return &a, nil
}

// SaveAlert stores a delivered alert
func (r *AssessmentRepository) SaveAlert(ctx context.Context, alert *models.AlertRequest) error {
	query := `
		INSERT INTO alerts (id, tourist_id, assessment_id, kind, severity, message, latitude, longitude, zone_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.TouristID,
		alert.AssessmentID,
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		alert.Latitude,
		alert.Longitude,
		alert.ZoneID,
		alert.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns recent alerts of touristID, newest first
func (r *AssessmentRepository) ListAlerts(ctx context.Context, touristID string, limit int) ([]models.AlertRequest, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, tourist_id, assessment_id, kind, severity, message, latitude, longitude, zone_id, created_at
		FROM alerts
		WHERE tourist_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, touristID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRequest
	for rows.Next() {
		var (
			a       models.AlertRequest
			created int64
		)
		if err := rows.Scan(&a.ID, &a.TouristID, &a.AssessmentID, &a.Kind, &a.Severity, &a.Message,
			&a.Latitude, &a.Longitude, &a.ZoneID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.CreatedAt = database.UnixMilli(created)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
