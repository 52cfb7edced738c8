package models

import (
	"fmt"
	"time"
)

// ModelKind names a trainable model
type ModelKind string

const (
	ModelKindAnomaly  ModelKind = "anomaly"
	ModelKindTemporal ModelKind = "temporal"
)

// ModelKinds lists every trainable model in scheduling order
var ModelKinds = []ModelKind{ModelKindAnomaly, ModelKindTemporal}

// ParseModelKind validates a kind string
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case ModelKindAnomaly, ModelKindTemporal:
		return ModelKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModelKind, s)
}

// ModelSnapshot is an immutable, versioned trained model.
// Once published it must not be mutated; build a new one instead.
type ModelSnapshot struct {
	Kind                ModelKind       `json:"kind"`
	Version             uint64          `json:"version"`
	TrainedAt           time.Time       `json:"trained_at"`
	TrainingSampleCount int             `json:"training_sample_count"`
	Anomaly             *AnomalyParams  `json:"anomaly,omitempty"`
	Temporal            *TemporalParams `json:"temporal,omitempty"`
}

// SnapshotInfo is the metadata part of a snapshot, safe to expose over the API
type SnapshotInfo struct {
	Kind                ModelKind `json:"kind"`
	Version             uint64    `json:"version"`
	TrainedAt           time.Time `json:"trained_at"`
	TrainingSampleCount int       `json:"training_sample_count"`
}

// Info returns the snapshot metadata
func (s *ModelSnapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		Kind:                s.Kind,
		Version:             s.Version,
		TrainedAt:           s.TrainedAt,
		TrainingSampleCount: s.TrainingSampleCount,
	}
}

// IsolationNode is one node of a flattened isolation tree.
// Leaves have Left == Right == -1 and carry the number of training points that reached them.
type IsolationNode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int     `json:"l"`
	Right   int     `json:"r"`
	Size    int     `json:"n"`
}

// Leaf reports whether the node terminates a path
func (n IsolationNode) Leaf() bool {
	return n.Left < 0 && n.Right < 0
}

// IsolationTree is a randomized partitioning tree stored as a node array rooted at 0
type IsolationTree struct {
	Nodes []IsolationNode `json:"nodes"`
}

// AnomalyParams are the learned parameters of the isolation forest
type AnomalyParams struct {
	Trees        []IsolationTree `json:"trees"`
	SampleSize   int             `json:"sample_size"`
	Seed         int64           `json:"seed"`
	FeatureCount int             `json:"feature_count"`
	// ScoreFloor is the median raw training score; raw scores at or below it map to 0
	ScoreFloor float64 `json:"score_floor"`
	// Threshold is the raw training score at the 1-contamination quantile; raw
	// scores above it normalize above 0.5 and count as anomalous
	Threshold float64 `json:"threshold"`
}

// Baseline is a tourist's "normal" movement statistics
type Baseline struct {
	TouristID   string    `json:"tourist_id"`
	Means       []float64 `json:"means"`
	Variances   []float64 `json:"variances"`
	SampleCount int       `json:"sample_count"`
	LastSeen    time.Time `json:"last_seen"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TemporalParams hold the per-tourist baselines learned in one cycle
type TemporalParams struct {
	Baselines map[string]Baseline `json:"baselines"`
}
