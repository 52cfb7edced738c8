package anomaly

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/stats"
)

const eulerGamma = 0.5772156649015329

// Config controls isolation forest training
type Config struct {
	Trees         int
	SampleSize    int
	Seed          int64
	Contamination float64
	MinSamples    int
}

// DefaultConfig mirrors the service defaults
func DefaultConfig() Config {
	return Config{Trees: 100, SampleSize: 256, Seed: 42, Contamination: 0.1, MinSamples: 10}
}

// Forest trains isolation forest snapshots
type Forest struct {
	cfg Config
}

// NewForest creates a trainer; zero fields take defaults
func NewForest(cfg Config) *Forest {
	def := DefaultConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize < 2 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 1 {
		cfg.Contamination = def.Contamination
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 2
	}
	return &Forest{cfg: cfg}
}

// Train fits a forest on vectors. The returned snapshot has Version 0; the registry assigns one.
func (f *Forest) Train(vectors [][]float64, now time.Time) (*models.ModelSnapshot, error) {
	data, dims, err := clean(vectors)
	if err != nil {
		return nil, err
	}
	if len(data) < f.cfg.MinSamples {
		return nil, &models.InsufficientDataError{Kind: models.ModelKindAnomaly, Have: len(data), Need: f.cfg.MinSamples}
	}

	psi := f.cfg.SampleSize
	if len(data) < psi {
		psi = len(data)
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))

	rng := rand.New(rand.NewSource(f.cfg.Seed))
	b := &builder{data: data, dims: dims, limit: limit, rng: rng}

	params := &models.AnomalyParams{
		Trees:        make([]models.IsolationTree, f.cfg.Trees),
		SampleSize:   psi,
		Seed:         f.cfg.Seed,
		FeatureCount: dims,
	}
	for t := range params.Trees {
		sample := rng.Perm(len(data))[:psi]
		b.nodes = nil
		b.grow(sample, 0)
		params.Trees[t] = models.IsolationTree{Nodes: b.nodes}
	}

	raw := make([]float64, len(data))
	for i, v := range data {
		raw[i] = rawScore(params, v)
	}
	params.ScoreFloor = stats.Median(raw)
	params.Threshold = stats.Quantile(raw, 1-f.cfg.Contamination)

	return &models.ModelSnapshot{
		Kind:                models.ModelKindAnomaly,
		TrainedAt:           now,
		TrainingSampleCount: len(data),
		Anomaly:             params,
	}, nil
}

// AnomalousScore is the normalized score the contamination threshold maps to
const AnomalousScore = 0.5

// Score returns the normalized anomaly score of vector in [0,1]; higher is more anomalous.
// Scores above AnomalousScore are the ones IsAnomalous flags.
// A missing snapshot or a vector of the wrong dimension scores 0.
func Score(snap *models.ModelSnapshot, vector []float64) float64 {
	if snap == nil || snap.Anomaly == nil || len(vector) != snap.Anomaly.FeatureCount {
		return 0
	}
	return normalize(snap.Anomaly, rawScore(snap.Anomaly, vector))
}

// IsAnomalous reports whether vector scores above the snapshot's contamination threshold
func IsAnomalous(snap *models.ModelSnapshot, vector []float64) bool {
	return Score(snap, vector) > AnomalousScore
}

// normalize maps [floor, threshold] onto [0, 0.5] and (threshold, 1] onto (0.5, 1]
// so the raw scale compression of the isolation score does not hide outliers.
func normalize(p *models.AnomalyParams, raw float64) float64 {
	floor, threshold := p.ScoreFloor, math.Max(p.ScoreFloor, p.Threshold)
	switch {
	case raw <= floor:
		return 0
	case raw <= threshold:
		return AnomalousScore * (raw - floor) / (threshold - floor)
	case threshold >= 1:
		return 1
	}
	return stats.Clamp(AnomalousScore+(1-AnomalousScore)*(raw-threshold)/(1-threshold), 0, 1)
}

// rawScore is the standard isolation score 2^(-E[h]/c(psi))
func rawScore(p *models.AnomalyParams, v []float64) float64 {
	if len(p.Trees) == 0 {
		return 0
	}
	var total float64
	for i := range p.Trees {
		total += pathLength(p.Trees[i].Nodes, v)
	}
	mean := total / float64(len(p.Trees))
	cn := averagePathLength(p.SampleSize)
	if cn == 0 {
		return 0
	}
	return math.Pow(2, -mean/cn)
}

func pathLength(nodes []models.IsolationNode, v []float64) float64 {
	if len(nodes) == 0 {
		return 0
	}
	idx, depth := 0, 0
	for {
		n := nodes[idx]
		if n.Leaf() {
			return float64(depth) + averagePathLength(n.Size)
		}
		if v[n.Feature] < n.Split {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

type builder struct {
	data  [][]float64
	dims  int
	limit int
	rng   *rand.Rand
	nodes []models.IsolationNode
}

// grow appends the subtree for idx and returns its node index
func (b *builder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, models.IsolationNode{Left: -1, Right: -1, Size: len(idx)})
	if depth >= b.limit || len(idx) <= 1 {
		return self
	}

	// only features with spread can split
	var splittable []int
	lows := make([]float64, b.dims)
	highs := make([]float64, b.dims)
	for d := 0; d < b.dims; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			lo = math.Min(lo, b.data[i][d])
			hi = math.Max(hi, b.data[i][d])
		}
		lows[d], highs[d] = lo, hi
		if hi > lo {
			splittable = append(splittable, d)
		}
	}
	if len(splittable) == 0 {
		return self
	}

	feature := splittable[b.rng.Intn(len(splittable))]
	split := lows[feature] + b.rng.Float64()*(highs[feature]-lows[feature])

	var left, right []int
	for _, i := range idx {
		if b.data[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = models.IsolationNode{Feature: feature, Split: split, Left: l, Right: r, Size: len(idx)}
	return self
}

// clean drops non-finite rows and checks all rows share one dimension
func clean(vectors [][]float64) ([][]float64, int, error) {
	if len(vectors) == 0 {
		return nil, 0, nil
	}
	dims := len(vectors[0])
	if dims == 0 {
		return nil, 0, fmt.Errorf("anomaly training: empty feature vectors")
	}

	out := make([][]float64, 0, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, 0, fmt.Errorf("anomaly training: vector %d has %d features, want %d", i, len(v), dims)
		}
		if finite(v) {
			out = append(out, v)
		}
	}
	return out, dims, nil
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
