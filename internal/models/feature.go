package models

import "time"

// FeatureCount is the dimension of FeatureVector.Vector
const FeatureCount = 7

// FeatureNames lists the vector dimensions in order
var FeatureNames = [FeatureCount]string{
	"distance_per_minute",
	"inactivity_minutes",
	"route_deviation_m",
	"speed_variance",
	"local_density",
	"zone_risk_level",
	"time_of_day_risk",
}

// FeatureVector is the fixed-schema numeric summary of a tourist's recent movement.
// It is derived on demand and never persisted.
type FeatureVector struct {
	TouristID  string    `json:"tourist_id"`
	CapturedAt time.Time `json:"captured_at"`

	DistancePerMinute    float64 `json:"distance_per_minute"` // m/min averaged over segments
	InactivityMinutes    float64 `json:"inactivity_minutes"`
	RouteDeviationMeters float64 `json:"route_deviation_m"`
	SpeedVariance        float64 `json:"speed_variance"` // (km/h)^2
	LocalDensity         float64 `json:"local_density"`  // 0..1
	ZoneRiskLevel        float64 `json:"zone_risk_level"`
	TimeOfDayRisk        float64 `json:"time_of_day_risk"`

	// LastSegmentSpeed is the speed of the newest segment in km/h
	LastSegmentSpeed float64 `json:"last_segment_speed"`

	SampleCount   int     `json:"sample_count"`
	DensityKnown  bool    `json:"density_known"`
	Confidence    float64 `json:"confidence"`
	LowConfidence bool    `json:"low_confidence"`
}

// Vector returns the model input in FeatureNames order
func (f FeatureVector) Vector() []float64 {
	return []float64{
		f.DistancePerMinute,
		f.InactivityMinutes,
		f.RouteDeviationMeters,
		f.SpeedVariance,
		f.LocalDensity,
		f.ZoneRiskLevel,
		f.TimeOfDayRisk,
	}
}

// MovementVector returns the per-tourist movement dimensions used by the temporal model
func (f FeatureVector) MovementVector() []float64 {
	return []float64{f.DistancePerMinute, f.InactivityMinutes, f.SpeedVariance}
}

// MovementFeatureCount is the dimension of FeatureVector.MovementVector
const MovementFeatureCount = 3
