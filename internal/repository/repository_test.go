package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrationManager(db, zap.NewNop()).RunMigrations(context.Background()))
	return db
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func insertSample(t *testing.T, repo *LocationRepository, tourist string, lat, lon float64, at time.Time) models.LocationSample {
	t.Helper()
	s := models.LocationSample{TouristID: tourist, Latitude: lat, Longitude: lon, CapturedAt: at}
	require.NoError(t, repo.Insert(context.Background(), &s))
	return s
}

func TestLocationRecentWindow(t *testing.T) {
	repo := NewLocationRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		insertSample(t, repo, "alice", 48+float64(i)*0.001, 11, base.Add(time.Duration(i)*time.Minute))
	}
	insertSample(t, repo, "bob", 48, 11, base.Add(3*time.Minute))

	got, err := repo.RecentLocations(ctx, "alice", models.Window{MaxSamples: 3, MaxAge: time.Hour, Until: base.Add(10 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(3*time.Minute), got[0].CapturedAt)
	assert.Equal(t, base.Add(5*time.Minute), got[2].CapturedAt)
	assert.Equal(t, "alice", got[0].TouristID)

	got, err = repo.RecentLocations(ctx, "alice", models.Window{MaxSamples: 10, MaxAge: 2 * time.Minute, Until: base.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLocationOptionalFieldsRoundTrip(t *testing.T) {
	repo := NewLocationRepository(setupTestDB(t))
	speed := 12.5
	s := models.LocationSample{TouristID: "alice", Latitude: 48, Longitude: 11, Speed: &speed, CapturedAt: base}
	require.NoError(t, repo.Insert(context.Background(), &s))
	assert.NotZero(t, s.ID)

	got, err := repo.SamplesSince(context.Background(), base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Speed)
	assert.Equal(t, 12.5, *got[0].Speed)
	assert.Nil(t, got[0].Altitude)
	assert.Equal(t, s.ID, got[0].ID)
}

func TestCountNearbySamples(t *testing.T) {
	repo := NewLocationRepository(setupTestDB(t))
	ctx := context.Background()

	// bob ~55 m and carol ~134 m away count; dave is stale, erin ~1.1 km and frank ~211 m are too far
	insertSample(t, repo, "alice", 48.0, 11.0, base)
	insertSample(t, repo, "bob", 48.0005, 11.0, base.Add(-5*time.Minute))
	insertSample(t, repo, "carol", 48.001, 11.001, base.Add(-time.Minute))
	insertSample(t, repo, "dave", 48.0, 11.0, base.Add(-2*time.Hour))
	insertSample(t, repo, "erin", 48.01, 11.0, base)
	insertSample(t, repo, "frank", 48.0019, 11.0, base.Add(-10*time.Minute))

	n, err := repo.CountNearbySamples(ctx, "alice", 48.0, 11.0, 200, base.Add(-30*time.Minute), base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteBefore(t *testing.T) {
	repo := NewLocationRepository(setupTestDB(t))
	insertSample(t, repo, "alice", 48, 11, base)
	insertSample(t, repo, "alice", 48, 11, base.Add(time.Hour))

	n, err := repo.DeleteBefore(context.Background(), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecentLocationsQueryArgs(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	until := base.Add(time.Hour)

	rows := sqlmock.NewRows([]string{"id", "tourist_id", "latitude", "longitude", "altitude", "speed", "heading", "captured_at"}).
		AddRow(2, "alice", 48.1, 11.1, nil, 5.0, nil, until.UnixMilli()).
		AddRow(1, "alice", 48.0, 11.0, nil, nil, nil, base.UnixMilli())
	mock.ExpectQuery(`SELECT id, tourist_id`).
		WithArgs("alice", until.Add(-2*time.Hour).UnixMilli(), until.UnixMilli(), 10).
		WillReturnRows(rows)

	got, err := repo.RecentLocations(context.Background(), "alice", models.Window{MaxSamples: 10, MaxAge: 2 * time.Hour, Until: until})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	require.NotNil(t, got[1].Speed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentLocationsQueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery(`SELECT id, tourist_id`).WillReturnError(errors.New("database is locked"))

	_, err := NewLocationRepository(db).RecentLocations(context.Background(), "alice", models.Window{MaxSamples: 10, MaxAge: time.Hour})
	assert.ErrorContains(t, err, "database is locked")
}

func TestZoneUpsertAndList(t *testing.T) {
	repo := NewZoneRepository(setupTestDB(t))
	ctx := context.Background()
	poly := []spatial.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}}

	require.NoError(t, repo.UpsertZones(ctx, []models.Zone{
		{ID: "b", Name: "Beach", Kind: models.ZoneKindSafe, RiskLevel: 1, Polygon: poly},
		{ID: "a", Name: "Cliff", Kind: models.ZoneKindRestricted, RiskLevel: 4, BufferMeters: 25, Polygon: poly},
	}))
	require.NoError(t, repo.UpsertZones(ctx, []models.Zone{
		{ID: "b", Name: "Beach north", Kind: models.ZoneKindSafe, RiskLevel: 2, Polygon: poly},
	}))

	zones, err := repo.GetZones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "a", zones[0].ID)
	assert.Equal(t, models.ZoneKindRestricted, zones[0].Kind)
	assert.Equal(t, 25.0, zones[0].BufferMeters)
	assert.Equal(t, poly, zones[0].Polygon)
	assert.Equal(t, "Beach north", zones[1].Name)
	assert.Equal(t, 2, zones[1].RiskLevel)

	require.NoError(t, repo.DeleteZone(ctx, "a"))
	assert.ErrorIs(t, repo.DeleteZone(ctx, "a"), models.ErrNotFound)
}

func TestRouteRoundTrip(t *testing.T) {
	repo := NewRouteRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.PlannedRoute(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	route := &models.PlannedRoute{TouristID: "alice", Name: "Old town", Waypoints: []spatial.Point{{Lat: 48, Lon: 11}, {Lat: 48.01, Lon: 11.01}}, UpdatedAt: base}
	require.NoError(t, repo.SaveRoute(ctx, route))

	got, err := repo.PlannedRoute(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, route.Waypoints, got.Waypoints)
	assert.Equal(t, base, got.UpdatedAt)

	all, err := repo.PlannedRoutes(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "alice")
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	repo := NewModelRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.LatestSnapshot(ctx, models.ModelKindAnomaly)
	assert.ErrorIs(t, err, models.ErrNotFound)

	for v := uint64(1); v <= 4; v++ {
		require.NoError(t, repo.SaveSnapshot(ctx, &models.ModelSnapshot{
			Kind:                models.ModelKindAnomaly,
			Version:             v,
			TrainedAt:           base.Add(time.Duration(v) * time.Minute),
			TrainingSampleCount: int(v) * 10,
			Anomaly: &models.AnomalyParams{
				Trees:        []models.IsolationTree{{Nodes: []models.IsolationNode{{Left: -1, Right: -1, Size: 3}}}},
				SampleSize:   3,
				FeatureCount: models.FeatureCount,
				ScoreFloor:   0.4,
				Threshold:    0.6,
			},
		}))
	}

	latest, err := repo.LatestSnapshot(ctx, models.ModelKindAnomaly)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), latest.Version)
	require.NotNil(t, latest.Anomaly)
	assert.Equal(t, 0.6, latest.Anomaly.Threshold)
	assert.True(t, latest.Anomaly.Trees[0].Nodes[0].Leaf())

	require.NoError(t, repo.PruneSnapshots(ctx, models.ModelKindAnomaly, 2))
	infos, err := repo.ListSnapshots(ctx, models.ModelKindAnomaly)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(4), infos[0].Version)
	assert.Equal(t, uint64(3), infos[1].Version)
}

func TestTemporalSnapshotWritesBaselines(t *testing.T) {
	repo := NewModelRepository(setupTestDB(t))
	ctx := context.Background()

	snap := &models.ModelSnapshot{
		Kind:    models.ModelKindTemporal,
		Version: 3,
		Temporal: &models.TemporalParams{Baselines: map[string]models.Baseline{
			"alice": {TouristID: "alice", Means: []float64{60, 2, 3}, Variances: []float64{25, 1, 0.5}, SampleCount: 30, LastSeen: base, UpdatedAt: base},
		}},
	}
	require.NoError(t, repo.SaveSnapshot(ctx, snap))

	b, err := repo.GetTouristBaseline(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []float64{60, 2, 3}, b.Means)
	assert.Equal(t, 30, b.SampleCount)
	assert.Equal(t, base, b.LastSeen)

	_, err = repo.GetTouristBaseline(ctx, "bob")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTrainingRunLifecycle(t *testing.T) {
	repo := NewTrainingRunRepository(setupTestDB(t))
	ctx := context.Background()

	run := &models.TrainingRun{ID: "run-1", Kind: models.ModelKindAnomaly, Trigger: models.TriggerForced, Status: models.RunStatusRunning, StartedAt: base}
	require.NoError(t, repo.StartRun(ctx, run))

	finished := base.Add(2 * time.Second)
	run.Status = models.RunStatusCompleted
	run.Version = 5
	run.SampleCount = 400
	run.FinishedAt = &finished
	require.NoError(t, repo.FinishRun(ctx, run))

	require.NoError(t, repo.StartRun(ctx, &models.TrainingRun{ID: "run-2", Kind: models.ModelKindTemporal, Trigger: models.TriggerScheduled, Status: models.RunStatusRunning, StartedAt: base.Add(time.Minute)}))

	runs, err := repo.ListRuns(ctx, TrainingRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, uint64(5), runs[1].Version)
	require.NotNil(t, runs[1].FinishedAt)
	assert.Equal(t, finished, *runs[1].FinishedAt)

	runs, err = repo.ListRuns(ctx, TrainingRunFilter{Kind: models.ModelKindAnomaly, Status: models.RunStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	err = repo.FinishRun(ctx, &models.TrainingRun{ID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAssessmentAndAlertRoundTrip(t *testing.T) {
	repo := NewAssessmentRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.LatestAssessment(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	older := &models.AssessmentResult{ID: "a1", TouristID: "alice", SafetyScore: 90, Severity: models.SeveritySafe,
		ModelVersions: map[models.ModelKind]uint64{models.ModelKindAnomaly: 1}, ComputedAt: base}
	newer := &models.AssessmentResult{ID: "a2", TouristID: "alice", LocationRef: 7, SafetyScore: 60, Severity: models.SeverityWarning,
		ZoneViolation: true, ZoneID: "cliff", AnomalyScore: 0.6, IsAnomalous: true, Confidence: 0.7, Degraded: []string{"density"},
		ModelVersions: map[models.ModelKind]uint64{models.ModelKindAnomaly: 2, models.ModelKindTemporal: 1}, ComputedAt: base.Add(time.Minute)}
	require.NoError(t, repo.SaveAssessment(ctx, older))
	require.NoError(t, repo.SaveAssessment(ctx, newer))

	got, err := repo.LatestAssessment(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.ID)
	assert.True(t, got.ZoneViolation)
	assert.True(t, got.IsAnomalous)
	assert.Equal(t, int64(7), got.LocationRef)
	assert.Equal(t, []string{"density"}, got.Degraded)
	assert.Equal(t, uint64(2), got.ModelVersions[models.ModelKindAnomaly])
	assert.Equal(t, base.Add(time.Minute), got.ComputedAt)

	alert := &models.AlertRequest{ID: "al1", TouristID: "alice", AssessmentID: "a2", Kind: models.AlertKindGeofence,
		Severity: models.AlertSeverityHigh, Message: "restricted", ZoneID: "cliff", CreatedAt: base}
	require.NoError(t, repo.SaveAlert(ctx, alert))

	alerts, err := repo.ListAlerts(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertKindGeofence, alerts[0].Kind)
	assert.Equal(t, base, alerts[0].CreatedAt)
}
