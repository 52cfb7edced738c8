package temporal

import (
	"math"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/stats"
)

// Defaults for the temporal model
const (
	DefaultMinBaselineSamples  = 3
	DefaultFullBaselineSamples = 20
	DefaultRetention           = 72 * time.Hour
	DefaultDeviationFloor      = 1.0 // RMS z-score considered normal
	DefaultDeviationCeiling    = 4.0 // RMS z-score that maps to 1
	relativeScaleFloor         = 0.1
	absoluteScaleFloor         = 1e-3
)

// Config controls baseline training and scoring
type Config struct {
	MinSamples          int // corpus-wide minimum for a cycle
	MinBaselineSamples  int // per tourist
	FullBaselineSamples int
	Retention           time.Duration
	DeviationFloor      float64
	DeviationCeiling    float64
}

// DefaultConfig returns the temporal defaults
func DefaultConfig() Config {
	return Config{
		MinSamples:          10,
		MinBaselineSamples:  DefaultMinBaselineSamples,
		FullBaselineSamples: DefaultFullBaselineSamples,
		Retention:           DefaultRetention,
		DeviationFloor:      DefaultDeviationFloor,
		DeviationCeiling:    DefaultDeviationCeiling,
	}
}

// Model trains per-tourist baselines and scores windows against them
type Model struct {
	cfg Config
}

// NewModel creates a temporal model; zero fields take defaults
func NewModel(cfg Config) *Model {
	def := DefaultConfig()
	if cfg.MinSamples < 1 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinBaselineSamples < 2 {
		cfg.MinBaselineSamples = def.MinBaselineSamples
	}
	if cfg.FullBaselineSamples < cfg.MinBaselineSamples {
		cfg.FullBaselineSamples = def.FullBaselineSamples
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.DeviationCeiling <= cfg.DeviationFloor {
		cfg.DeviationFloor, cfg.DeviationCeiling = def.DeviationFloor, def.DeviationCeiling
	}
	return &Model{cfg: cfg}
}

// Train builds a new baseline set from corpus. Baselines from previous that were not
// refreshed survive until their tourist has been inactive for longer than the retention.
// previous is never modified.
func (m *Model) Train(corpus []models.FeatureVector, previous *models.ModelSnapshot, now time.Time) (*models.ModelSnapshot, error) {
	if len(corpus) < m.cfg.MinSamples {
		return nil, &models.InsufficientDataError{Kind: models.ModelKindTemporal, Have: len(corpus), Need: m.cfg.MinSamples}
	}

	type group struct {
		rows     [][]float64
		lastSeen time.Time
	}
	groups := make(map[string]*group)
	for _, fv := range corpus {
		if fv.LowConfidence || fv.TouristID == "" {
			continue
		}
		g := groups[fv.TouristID]
		if g == nil {
			g = &group{}
			groups[fv.TouristID] = g
		}
		g.rows = append(g.rows, fv.MovementVector())
		if fv.CapturedAt.After(g.lastSeen) {
			g.lastSeen = fv.CapturedAt
		}
	}

	baselines := make(map[string]models.Baseline)
	cutoff := now.Add(-m.cfg.Retention)

	if previous != nil && previous.Temporal != nil {
		for id, b := range previous.Temporal.Baselines {
			if b.LastSeen.After(cutoff) {
				baselines[id] = b
			}
		}
	}

	for id, g := range groups {
		if len(g.rows) < m.cfg.MinBaselineSamples || !g.lastSeen.After(cutoff) {
			continue
		}
		cols := stats.Columns(g.rows)
		b := models.Baseline{
			TouristID:   id,
			Means:       make([]float64, len(cols)),
			Variances:   make([]float64, len(cols)),
			SampleCount: len(g.rows),
			LastSeen:    g.lastSeen,
			UpdatedAt:   now,
		}
		for d, col := range cols {
			b.Means[d] = stats.Mean(col)
			b.Variances[d] = stats.Variance(col)
		}
		baselines[id] = b
	}

	return &models.ModelSnapshot{
		Kind:                models.ModelKindTemporal,
		TrainedAt:           now,
		TrainingSampleCount: len(corpus),
		Temporal:            &models.TemporalParams{Baselines: baselines},
	}, nil
}

// Score is the normalized deviation of a window trajectory from baseline, in [0,1].
// The window's mean movement is z-scored per dimension against the baseline and the
// RMS z-score is mapped linearly from DeviationFloor (0) to DeviationCeiling (1).
func (m *Model) Score(trajectory [][]float64, baseline *models.Baseline) float64 {
	if baseline == nil || len(trajectory) == 0 {
		return 0
	}

	cols := stats.Columns(trajectory)
	dims := len(cols)
	if dims == 0 || len(baseline.Means) < dims || len(baseline.Variances) < dims {
		return 0
	}

	var sumSq float64
	for d, col := range cols {
		mean := baseline.Means[d]
		scale := math.Max(math.Sqrt(baseline.Variances[d]), relativeScaleFloor*math.Abs(mean))
		scale = math.Max(scale, absoluteScaleFloor)
		z := (stats.Mean(col) - mean) / scale
		sumSq += z * z
	}
	rms := math.Sqrt(sumSq / float64(dims))

	return stats.Clamp((rms-m.cfg.DeviationFloor)/(m.cfg.DeviationCeiling-m.cfg.DeviationFloor), 0, 1)
}

// Confidence grows with window fullness and with how much history backs the baseline
func (m *Model) Confidence(fullness float64, baseline *models.Baseline) float64 {
	if baseline == nil {
		return 0
	}
	trust := math.Min(1, float64(baseline.SampleCount)/float64(m.cfg.FullBaselineSamples))
	return stats.Clamp(fullness, 0, 1) * trust
}

// Assess scores a trajectory against the tourist's baseline.
// A missing baseline is cold: score 0 with confidence 0.
func (m *Model) Assess(trajectory [][]float64, fullness float64, baseline *models.Baseline, version uint64) models.SubScore {
	if baseline == nil {
		return models.SubScore{Cold: true, Version: version}
	}
	return models.SubScore{
		Score:      m.Score(trajectory, baseline),
		Confidence: m.Confidence(fullness, baseline),
		Version:    version,
	}
}

// Lookup returns the tourist's baseline from snap, or nil
func Lookup(snap *models.ModelSnapshot, touristID string) *models.Baseline {
	if snap == nil || snap.Temporal == nil {
		return nil
	}
	b, ok := snap.Temporal.Baselines[touristID]
	if !ok {
		return nil
	}
	return &b
}
