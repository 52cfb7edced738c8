package models

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityForScore(t *testing.T) {
	cases := map[int]Severity{
		100: SeveritySafe,
		80:  SeveritySafe,
		79:  SeverityWarning,
		50:  SeverityWarning,
		49:  SeverityCritical,
		0:   SeverityCritical,
	}
	for score, want := range cases {
		assert.Equal(t, want, SeverityForScore(score), "score %d", score)
	}
}

func TestParseModelKind(t *testing.T) {
	k, err := ParseModelKind("anomaly")
	require.NoError(t, err)
	assert.Equal(t, ModelKindAnomaly, k)

	_, err = ParseModelKind("weather")
	assert.ErrorIs(t, err, ErrUnknownModelKind)
}

func TestLocationSampleValidate(t *testing.T) {
	ok := LocationSample{Latitude: 26.14, Longitude: 91.73}
	assert.NoError(t, ok.Validate())

	for _, s := range []LocationSample{
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -181},
		{Latitude: math.NaN(), Longitude: 0},
	} {
		assert.ErrorIs(t, s.Validate(), ErrInvalidCoordinates)
	}
}

func TestLocationInputSample(t *testing.T) {
	lat, lon := 26.1, 91.7
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	s := LocationInput{TouristID: "t1", Latitude: &lat, Longitude: &lon}.Sample(now)
	assert.Equal(t, now, s.CapturedAt)
	assert.Equal(t, 26.1, s.Latitude)
	assert.Equal(t, "t1", s.TouristID)
}

func TestErrors(t *testing.T) {
	err := fmt.Errorf("cycle: %w", &InsufficientDataError{Kind: ModelKindAnomaly, Have: 3, Need: 10})
	assert.True(t, IsInsufficientData(err))
	assert.Contains(t, err.Error(), "have 3 samples, need 10")

	cause := errors.New("deadline exceeded")
	timeout := &DataSourceTimeoutError{Op: "corpus fetch", Attempts: 3, Err: cause}
	assert.ErrorIs(t, timeout, cause)
	assert.False(t, IsInsufficientData(timeout))
}

func TestFeatureVectorDimensions(t *testing.T) {
	f := FeatureVector{DistancePerMinute: 1, TimeOfDayRisk: 0.2}
	v := f.Vector()
	require.Len(t, v, FeatureCount)
	assert.Equal(t, 1.0, v[0])
	assert.Equal(t, 0.2, v[FeatureCount-1])
	assert.Len(t, f.MovementVector(), MovementFeatureCount)
}

func TestAlertDedupKey(t *testing.T) {
	a := AlertRequest{TouristID: "t1", Kind: AlertKindGeofence, Severity: AlertSeverityHigh}
	assert.Equal(t, "t1:geofence:HIGH", a.DedupKey())
}
