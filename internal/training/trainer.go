package training

import (
	"context"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/analysis/anomaly"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/temporal"
	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// Trainer is the interface every trainable model kind implements
type Trainer interface {
	// Kind returns the model kind this trainer produces
	Kind() models.ModelKind

	// Fit trains a new snapshot from corpus. previous is the current snapshot or nil
	// and must not be modified. The returned snapshot is unversioned.
	Fit(ctx context.Context, corpus []models.FeatureVector, previous *models.ModelSnapshot, now time.Time) (*models.ModelSnapshot, error)
}

// CorpusSource provides historical feature vectors for training
type CorpusSource interface {
	Corpus(ctx context.Context, since time.Time) ([]models.FeatureVector, error)
}

// RunRecorder persists training run history
type RunRecorder interface {
	StartRun(ctx context.Context, run *models.TrainingRun) error
	FinishRun(ctx context.Context, run *models.TrainingRun) error
}

// PublishHook runs after a snapshot becomes current, e.g. to persist it.
// Hook errors are logged and never roll back the publish.
type PublishHook func(ctx context.Context, snap *models.ModelSnapshot) error

// AnomalyTrainer fits the population isolation forest
type AnomalyTrainer struct {
	forest *anomaly.Forest
}

// NewAnomalyTrainer creates an anomaly trainer
func NewAnomalyTrainer(cfg anomaly.Config) *AnomalyTrainer {
	return &AnomalyTrainer{forest: anomaly.NewForest(cfg)}
}

func (t *AnomalyTrainer) Kind() models.ModelKind {
	return models.ModelKindAnomaly
}

func (t *AnomalyTrainer) Fit(ctx context.Context, corpus []models.FeatureVector, _ *models.ModelSnapshot, now time.Time) (*models.ModelSnapshot, error) {
	vectors := make([][]float64, 0, len(corpus))
	for _, fv := range corpus {
		vectors = append(vectors, fv.Vector())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.forest.Train(vectors, now)
}

// TemporalTrainer refreshes per-tourist baselines
type TemporalTrainer struct {
	model *temporal.Model
}

// NewTemporalTrainer creates a temporal trainer
func NewTemporalTrainer(model *temporal.Model) *TemporalTrainer {
	return &TemporalTrainer{model: model}
}

func (t *TemporalTrainer) Kind() models.ModelKind {
	return models.ModelKindTemporal
}

func (t *TemporalTrainer) Fit(ctx context.Context, corpus []models.FeatureVector, previous *models.ModelSnapshot, now time.Time) (*models.ModelSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.model.Train(corpus, previous, now)
}
