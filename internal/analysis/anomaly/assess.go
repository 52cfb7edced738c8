package anomaly

import (
	"math"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// FullTrainingSamples is the corpus size at which the model is fully trusted
const FullTrainingSamples = 100

// Assess scores a feature vector against the current snapshot.
// With no snapshot the result is cold: score 0, confidence 0.
func Assess(snap *models.ModelSnapshot, fv models.FeatureVector) models.SubScore {
	if snap == nil || snap.Anomaly == nil {
		return models.SubScore{Cold: true}
	}

	trust := math.Min(1, float64(snap.TrainingSampleCount)/FullTrainingSamples)
	score := Score(snap, fv.Vector())
	return models.SubScore{
		Score:      score,
		Confidence: fv.Confidence * trust,
		Version:    snap.Version,
		Anomalous:  score > AnomalousScore,
	}
}
