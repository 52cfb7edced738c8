package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/analysis/features"
	"github.com/jengzang/tourist-safety-backend/internal/geofence"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

type historyStub struct {
	samples []models.LocationSample
	err     error
}

func (h historyStub) SamplesSince(context.Context, time.Time) ([]models.LocationSample, error) {
	return h.samples, h.err
}

type routeStub map[string]models.PlannedRoute

func (r routeStub) PlannedRoutes(context.Context) (map[string]models.PlannedRoute, error) {
	return r, nil
}

type zoneStub struct{ eval *geofence.Evaluator }

func (z zoneStub) Evaluator() *geofence.Evaluator { return z.eval }

func sampleAt(tourist string, lat, lon float64, at time.Time) models.LocationSample {
	return models.LocationSample{TouristID: tourist, Latitude: lat, Longitude: lon, CapturedAt: at}
}

func TestCorpusBuildsSlidingWindows(t *testing.T) {
	// ~50 m steps north every minute
	history := historyStub{samples: []models.LocationSample{
		sampleAt("alice", 48.00090, 11.0, epoch.Add(2*time.Minute)),
		sampleAt("alice", 48.00000, 11.0, epoch),
		sampleAt("alice", 48.00045, 11.0, epoch.Add(time.Minute)),
		sampleAt("bob", 48.00000, 11.0, epoch.Add(time.Minute)),
	}}

	zone := models.Zone{
		ID: "cliff", Name: "Cliff edge", Kind: models.ZoneKindRestricted, RiskLevel: 4,
		Polygon: []spatial.Point{{Lat: 47.99, Lon: 10.99}, {Lat: 47.99, Lon: 11.01}, {Lat: 48.01, Lon: 11.01}, {Lat: 48.01, Lon: 10.99}},
	}
	eval, rejected := geofence.NewEvaluator([]models.Zone{zone})
	require.Empty(t, rejected)

	b := NewCorpusBuilder(history, zoneStub{eval}, nil, features.NewExtractor(features.DefaultConfig()),
		models.Window{MaxSamples: 10, MaxAge: 2 * time.Hour}, zap.NewNop())

	corpus, err := b.Corpus(context.Background(), epoch.Add(-time.Hour))
	require.NoError(t, err)

	// alice's first window and bob's only sample are too short
	require.Len(t, corpus, 2)
	for _, fv := range corpus {
		assert.Equal(t, "alice", fv.TouristID)
		assert.False(t, fv.LowConfidence)
		assert.True(t, fv.DensityKnown)
		assert.InDelta(t, 1.0/features.DefaultDensitySaturation, fv.LocalDensity, 1e-9)
		assert.Equal(t, 4.0, fv.ZoneRiskLevel)
		assert.InDelta(t, 50, fv.DistancePerMinute, 1)
	}
	assert.Equal(t, 2, corpus[0].SampleCount)
	assert.Equal(t, 3, corpus[1].SampleCount)
	assert.True(t, corpus[0].CapturedAt.Before(corpus[1].CapturedAt))
}

func TestCorpusWindowRespectsLimits(t *testing.T) {
	var samples []models.LocationSample
	for i := 0; i < 6; i++ {
		samples = append(samples, sampleAt("alice", 48+float64(i)*0.0005, 11, epoch.Add(time.Duration(i)*10*time.Minute)))
	}

	b := NewCorpusBuilder(historyStub{samples: samples}, nil, nil, features.NewExtractor(features.DefaultConfig()),
		models.Window{MaxSamples: 3, MaxAge: 15 * time.Minute}, zap.NewNop())

	win := b.windowEnding(samples, 5)
	require.Len(t, win, 2)
	assert.Equal(t, samples[4].CapturedAt, win[0].CapturedAt)

	b.window.MaxAge = 2 * time.Hour
	assert.Len(t, b.windowEnding(samples, 5), 3)
	assert.Len(t, b.windowEnding(samples, 0), 1)
}

func TestCorpusRouteDeviation(t *testing.T) {
	history := historyStub{samples: []models.LocationSample{
		sampleAt("alice", 48.0, 11.0, epoch),
		sampleAt("alice", 48.0, 11.001, epoch.Add(time.Minute)),
	}}
	routes := routeStub{"alice": {TouristID: "alice", Waypoints: []spatial.Point{{Lat: 48.001, Lon: 10.99}, {Lat: 48.001, Lon: 11.01}}}}

	b := NewCorpusBuilder(history, nil, routes, features.NewExtractor(features.DefaultConfig()),
		models.Window{MaxSamples: 10, MaxAge: time.Hour}, zap.NewNop())

	corpus, err := b.Corpus(context.Background(), epoch)
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	assert.InDelta(t, 111, corpus[0].RouteDeviationMeters, 2)
	assert.Equal(t, 0.0, corpus[0].LocalDensity)
}

func TestCorpusHistoryError(t *testing.T) {
	b := NewCorpusBuilder(historyStub{err: errors.New("locked")}, nil, nil, features.NewExtractor(features.DefaultConfig()),
		models.Window{MaxSamples: 10, MaxAge: time.Hour}, zap.NewNop())

	_, err := b.Corpus(context.Background(), epoch)
	assert.ErrorContains(t, err, "locked")
}

func TestDensityGridExcludesSelfAndStale(t *testing.T) {
	samples := []models.LocationSample{
		sampleAt("alice", 48.0, 11.0, epoch),
		sampleAt("alice", 48.0001, 11.0, epoch),
		sampleAt("bob", 48.0001, 11.0, epoch.Add(-10*time.Minute)),
		sampleAt("carol", 48.0001, 11.0, epoch.Add(-45*time.Minute)),
		sampleAt("dave", 48.01, 11.0, epoch),
		sampleAt("erin", 48.0, 11.0, epoch.Add(time.Minute)),
	}
	g := newDensityGrid(samples, features.DensityRadiusMeters)
	assert.Equal(t, 1, g.count(samples[0], features.DensityWindow))
}
