package models

import (
	"time"
)

// Severity is the discrete classification derived from a safety score
type Severity string

const (
	SeveritySafe     Severity = "SAFE"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Severity thresholds on the 0..100 safety score
const (
	SafeScoreFloor    = 80
	WarningScoreFloor = 50
)

// SeverityForScore maps a safety score to its tier
func SeverityForScore(score int) Severity {
	switch {
	case score >= SafeScoreFloor:
		return SeveritySafe
	case score >= WarningScoreFloor:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// SubScore is one model's contribution to an assessment
type SubScore struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Version    uint64  `json:"version,omitempty"`
	Cold       bool    `json:"cold"` // no snapshot or baseline was available
	Anomalous  bool    `json:"anomalous,omitempty"`
}

// AssessmentResult is the immutable outcome of assessing one location update
type AssessmentResult struct {
	ID                string               `json:"id" db:"id"`
	TouristID         string               `json:"tourist_id" db:"tourist_id"`
	LocationRef       int64                `json:"location_ref,omitempty" db:"location_id"`
	Latitude          float64              `json:"latitude" db:"latitude"`
	Longitude         float64              `json:"longitude" db:"longitude"`
	SafetyScore       int                  `json:"safety_score" db:"safety_score"`
	Severity          Severity             `json:"severity" db:"severity"`
	ZoneViolation     bool                 `json:"zone_violation" db:"zone_violation"`
	ZoneID            string               `json:"zone_id,omitempty" db:"zone_id"`
	AnomalyScore      float64              `json:"anomaly_score" db:"anomaly_score"`
	IsAnomalous       bool                 `json:"is_anomalous" db:"is_anomalous"`
	TemporalRiskScore float64              `json:"temporal_risk_score" db:"temporal_risk_score"`
	Confidence        float64              `json:"confidence" db:"confidence"`
	ModelVersions     map[ModelKind]uint64 `json:"model_versions"`
	Features          *FeatureVector       `json:"features,omitempty"`
	Alert             *AlertRequest        `json:"alert,omitempty"`
	Degraded          []string             `json:"degraded,omitempty"`
	ComputedAt        time.Time            `json:"computed_at" db:"computed_at"`
}

// AlertKind names the cause of an alert
type AlertKind string

const (
	AlertKindGeofence       AlertKind = "geofence"
	AlertKindAnomaly        AlertKind = "anomaly"
	AlertKindTemporal       AlertKind = "temporal"
	AlertKindLowSafetyScore AlertKind = "low_safety_score"
)

// AlertSeverity is the urgency attached to an alert request
type AlertSeverity string

const (
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// AlertRequest is handed to the alerting collaborator
type AlertRequest struct {
	ID           string        `json:"id" db:"id"`
	TouristID    string        `json:"tourist_id" db:"tourist_id"`
	AssessmentID string        `json:"assessment_id" db:"assessment_id"`
	Kind         AlertKind     `json:"kind" db:"kind"`
	Severity     AlertSeverity `json:"severity" db:"severity"`
	Message      string        `json:"message" db:"message"`
	Latitude     float64       `json:"latitude" db:"latitude"`
	Longitude    float64       `json:"longitude" db:"longitude"`
	ZoneID       string        `json:"zone_id,omitempty" db:"zone_id"`
	Suppressed   bool          `json:"suppressed"` // dropped by the cool-down window
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// DedupKey identifies repeated identical alerts for the cool-down window
func (a AlertRequest) DedupKey() string {
	return a.TouristID + ":" + string(a.Kind) + ":" + string(a.Severity)
}
