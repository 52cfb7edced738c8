package fusion

import (
	"fmt"
	"math"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/stats"
)

// Penalty weights on the 0..100 scale
const (
	ZonePenaltyPerRisk   = 8.0
	MaxZonePenalty       = 40.0
	AnomalyWeight        = 25.0
	TemporalWeight       = 20.0
	HighSpeedPenalty     = 30.0
	MediumSpeedPenalty   = 15.0
	zoneConfidenceShare  = 0.4
	modelConfidenceShare = 0.3
)

// Thresholds are the speed bands in km/h
type Thresholds struct {
	SpeedMediumKmh float64
	SpeedHighKmh   float64
}

// DefaultThresholds returns the service defaults
func DefaultThresholds() Thresholds {
	return Thresholds{SpeedMediumKmh: 40, SpeedHighKmh: 80}
}

// Input is everything fusion needs for one assessment
type Input struct {
	Zone     models.ZoneMatch
	Anomaly  models.SubScore
	Temporal models.SubScore
	SpeedKmh float64
}

// Penalties breaks down the deductions from 100
type Penalties struct {
	Zone     float64 `json:"zone"`
	Anomaly  float64 `json:"anomaly"`
	Temporal float64 `json:"temporal"`
	Speed    float64 `json:"speed"`
}

// AlertDecision is the alert fusion asks for, before ids and dedup are applied
type AlertDecision struct {
	Kind     models.AlertKind
	Severity models.AlertSeverity
	Message  string
}

// Result is the fused, classified outcome
type Result struct {
	RawScore      float64
	SafetyScore   int
	Severity      models.Severity
	ZoneViolation bool
	Confidence    float64
	Penalties     Penalties
	Alert         *AlertDecision
}

// Fuse combines the sub-scores into a bounded safety score and severity tier.
// It is a pure function of its inputs.
func Fuse(in Input, th Thresholds) Result {
	var p Penalties

	restricted := in.Zone.Restricted()
	if restricted {
		p.Zone = math.Min(ZonePenaltyPerRisk*float64(in.Zone.RiskLevel()), MaxZonePenalty)
	}
	p.Anomaly = stats.Clamp(in.Anomaly.Score, 0, 1) * AnomalyWeight
	p.Temporal = stats.Clamp(in.Temporal.Score, 0, 1) * TemporalWeight

	switch {
	case in.SpeedKmh > th.SpeedHighKmh:
		p.Speed = HighSpeedPenalty
	case in.SpeedKmh > th.SpeedMediumKmh:
		p.Speed = MediumSpeedPenalty
	}

	raw := stats.Clamp(100-p.Zone-p.Anomaly-p.Temporal-p.Speed, 0, 100)
	score := int(math.Round(raw))

	// the zone evaluator is always fully confident
	confidence := zoneConfidenceShare +
		modelConfidenceShare*stats.Clamp(in.Anomaly.Confidence, 0, 1) +
		modelConfidenceShare*stats.Clamp(in.Temporal.Confidence, 0, 1)

	res := Result{
		RawScore:      raw,
		SafetyScore:   score,
		Severity:      models.SeverityForScore(score),
		ZoneViolation: restricted,
		Confidence:    confidence,
		Penalties:     p,
	}

	if res.Severity != models.SeveritySafe || restricted {
		res.Alert = decideAlert(in, res)
	}
	return res
}

func decideAlert(in Input, res Result) *AlertDecision {
	d := &AlertDecision{Kind: dominantKind(in, res.Penalties)}

	switch {
	case res.Severity == models.SeverityCritical:
		d.Severity = models.AlertSeverityCritical
	case d.Kind == models.AlertKindGeofence:
		d.Severity = models.AlertSeverityHigh
	default:
		d.Severity = models.AlertSeverityMedium
	}

	switch d.Kind {
	case models.AlertKindGeofence:
		d.Message = fmt.Sprintf("entered restricted zone %s (risk %d)", zoneName(in.Zone), in.Zone.RiskLevel())
	case models.AlertKindAnomaly:
		d.Message = fmt.Sprintf("unusual movement pattern (anomaly %.2f)", in.Anomaly.Score)
	case models.AlertKindTemporal:
		d.Message = fmt.Sprintf("movement drifting from usual behaviour (temporal %.2f)", in.Temporal.Score)
	default:
		d.Message = fmt.Sprintf("safety score dropped to %d", res.SafetyScore)
	}
	return d
}

// dominantKind picks the alert kind from the largest non-zone penalty
func dominantKind(in Input, p Penalties) models.AlertKind {
	if in.Zone.Restricted() {
		return models.AlertKindGeofence
	}
	switch {
	case p.Anomaly > 0 && p.Anomaly >= p.Temporal && p.Anomaly >= p.Speed:
		return models.AlertKindAnomaly
	case p.Temporal > 0 && p.Temporal >= p.Speed:
		return models.AlertKindTemporal
	default:
		return models.AlertKindLowSafetyScore
	}
}

func zoneName(m models.ZoneMatch) string {
	if m.Zone == nil {
		return ""
	}
	if m.Zone.Name != "" {
		return m.Zone.Name
	}
	return m.Zone.ID
}
