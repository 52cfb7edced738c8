package features

import (
	"math"
	"sort"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
	"github.com/jengzang/tourist-safety-backend/internal/stats"
)

// Defaults for the feature extractor
const (
	DefaultMoveEpsilonMeters = 15.0
	DefaultDensitySaturation = 50
	DefaultFullWindowSamples = 5
	NeutralDensity           = 0.5
	DensityRadiusMeters      = 200.0
	DensityWindow            = 30 * time.Minute
	unknownDensityPenalty    = 0.8
	singleSampleConfidence   = 0.2
)

// Config tunes the extractor
type Config struct {
	MoveEpsilonMeters float64
	DensitySaturation int
	FullWindowSamples int // samples needed for full confidence
	Location          *time.Location
}

// DefaultConfig returns the extractor defaults in UTC
func DefaultConfig() Config {
	return Config{
		MoveEpsilonMeters: DefaultMoveEpsilonMeters,
		DensitySaturation: DefaultDensitySaturation,
		FullWindowSamples: DefaultFullWindowSamples,
		Location:          time.UTC,
	}
}

// Context carries the inputs the extractor does not compute itself
type Context struct {
	Zone  models.ZoneMatch
	Route []spatial.Point
	// NearbyCount is the number of other tourists' samples nearby; nil when the aggregate is unavailable
	NearbyCount *int
}

// Extractor converts a tourist's recent samples into a FeatureVector.
// It is stateless and safe for concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an extractor, filling zero config fields with defaults
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MoveEpsilonMeters <= 0 {
		cfg.MoveEpsilonMeters = def.MoveEpsilonMeters
	}
	if cfg.DensitySaturation <= 0 {
		cfg.DensitySaturation = def.DensitySaturation
	}
	if cfg.FullWindowSamples < 2 {
		cfg.FullWindowSamples = def.FullWindowSamples
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Extractor{cfg: cfg}
}

// Extract computes the feature vector for the newest sample in window.
// Fewer than two samples yield zeroed movement fields and LowConfidence.
func (e *Extractor) Extract(touristID string, window []models.LocationSample, fc Context) models.FeatureVector {
	samples := sortedCopy(window)
	fv := models.FeatureVector{
		TouristID:     touristID,
		SampleCount:   len(samples),
		ZoneRiskLevel: float64(fc.Zone.RiskLevel()),
	}

	if len(samples) > 0 {
		last := samples[len(samples)-1]
		fv.CapturedAt = last.CapturedAt
		fv.TimeOfDayRisk = TimeOfDayRisk(last.CapturedAt.In(e.cfg.Location).Hour())
		if len(fc.Route) > 0 {
			fv.RouteDeviationMeters = spatial.DistanceToPolyline(last.Point(), fc.Route)
		}
	}

	if fc.NearbyCount != nil {
		sat := float64(e.cfg.DensitySaturation)
		fv.LocalDensity = math.Min(float64(*fc.NearbyCount), sat) / sat
		fv.DensityKnown = true
	} else {
		fv.LocalDensity = NeutralDensity
	}

	if len(samples) >= 2 {
		m := e.movement(samples)
		fv.DistancePerMinute = m.distancePerMinute
		fv.InactivityMinutes = m.inactivityMinutes
		fv.SpeedVariance = m.speedVariance
		fv.LastSegmentSpeed = m.lastSpeed
	}

	fv.Confidence = e.confidence(len(samples), fv.DensityKnown)
	fv.LowConfidence = len(samples) < 2
	return fv
}

// Trajectory returns the movement vector of every prefix of window with at least
// two samples, oldest first. It is the sequence the temporal model compares to a baseline.
func (e *Extractor) Trajectory(window []models.LocationSample) [][]float64 {
	samples := sortedCopy(window)
	if len(samples) < 2 {
		return nil
	}

	out := make([][]float64, 0, len(samples)-1)
	for k := 2; k <= len(samples); k++ {
		m := e.movement(samples[:k])
		out = append(out, []float64{m.distancePerMinute, m.inactivityMinutes, m.speedVariance})
	}
	return out
}

// Fullness is the share of a full window present, in [0,1]
func (e *Extractor) Fullness(n int) float64 {
	if n < 2 {
		return 0
	}
	return math.Min(1, float64(n-1)/float64(e.cfg.FullWindowSamples-1))
}

func (e *Extractor) confidence(n int, densityKnown bool) float64 {
	var c float64
	switch {
	case n == 0:
		c = 0
	case n == 1:
		c = singleSampleConfidence
	default:
		c = e.Fullness(n)
	}
	if !densityKnown {
		c *= unknownDensityPenalty
	}
	return c
}

type movement struct {
	distancePerMinute float64
	inactivityMinutes float64
	speedVariance     float64
	lastSpeed         float64
}

// movement assumes samples are sorted and len >= 2
func (e *Extractor) movement(samples []models.LocationSample) movement {
	var (
		totalMeters  float64
		totalMinutes float64
		speeds       []float64
		m            movement
	)

	lastMove := -1
	for i := 1; i < len(samples); i++ {
		d := spatial.Distance(samples[i-1].Point(), samples[i].Point())
		elapsed := samples[i].CapturedAt.Sub(samples[i-1].CapturedAt)
		if d > e.cfg.MoveEpsilonMeters {
			lastMove = i
		}
		if elapsed <= 0 {
			continue
		}
		totalMeters += d
		totalMinutes += elapsed.Minutes()

		speed := d / 1000 / elapsed.Hours()
		speeds = append(speeds, speed)
		m.lastSpeed = speed
	}

	if totalMinutes > 0 {
		m.distancePerMinute = totalMeters / totalMinutes
	}

	newest := samples[len(samples)-1].CapturedAt
	anchor := samples[0].CapturedAt
	if lastMove >= 0 {
		anchor = samples[lastMove].CapturedAt
	}
	m.inactivityMinutes = math.Max(0, newest.Sub(anchor).Minutes())
	m.speedVariance = stats.Variance(speeds)
	return m
}

func sortedCopy(window []models.LocationSample) []models.LocationSample {
	out := make([]models.LocationSample, len(window))
	copy(out, window)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	return out
}
