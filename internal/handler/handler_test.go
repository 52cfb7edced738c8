package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/repository"
	"github.com/jengzang/tourist-safety-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type stubAssessor struct {
	recorded []models.LocationSample
	latest   *models.AssessmentResult
	err      error
}

func (s *stubAssessor) RecordAndAssess(ctx context.Context, sample models.LocationSample) (*models.AssessmentResult, error) {
	s.recorded = append(s.recorded, sample)
	return s.Assess(ctx, sample)
}

func (s *stubAssessor) Assess(_ context.Context, sample models.LocationSample) (*models.AssessmentResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !sample.Point().Valid() {
		return nil, models.ErrInvalidCoordinates
	}
	return &models.AssessmentResult{ID: "a-1", TouristID: sample.TouristID, SafetyScore: 60, Severity: models.SeverityWarning}, nil
}

func (s *stubAssessor) Latest(context.Context, string) (*models.AssessmentResult, error) {
	if s.latest == nil {
		return nil, models.ErrNotFound
	}
	return s.latest, nil
}

func assessmentRouter(svc Assessor) *gin.Engine {
	h := NewAssessmentHandler(svc)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	r := gin.New()
	r.POST("/api/v1/locations", h.RecordLocation)
	r.POST("/api/v1/assessments", h.Assess)
	r.GET("/api/v1/tourists/:id/assessments/latest", h.LatestAssessment)
	return r
}

func TestRecordLocation(t *testing.T) {
	svc := &stubAssessor{}
	r := assessmentRouter(svc)

	w, env := do(t, r, http.MethodPost, "/api/v1/locations", gin.H{
		"tourist_id": "alice", "latitude": 48.1, "longitude": 11.5,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res models.AssessmentResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 60, res.SafetyScore)
	assert.Equal(t, models.SeverityWarning, res.Severity)

	require.Len(t, svc.recorded, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), svc.recorded[0].CapturedAt)
}

func TestAssessValidation(t *testing.T) {
	r := assessmentRouter(&stubAssessor{})

	w, _ := do(t, r, http.MethodPost, "/api/v1/assessments", gin.H{"tourist_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, r, http.MethodPost, "/api/v1/assessments", gin.H{
		"tourist_id": "alice", "latitude": 95.0, "longitude": 11.5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "invalid coordinates")

	// zero is a valid coordinate
	w, _ = do(t, r, http.MethodPost, "/api/v1/assessments", gin.H{
		"tourist_id": "alice", "latitude": 0.0, "longitude": 0.0,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssessInternalError(t *testing.T) {
	r := assessmentRouter(&stubAssessor{err: errors.New("boom")})
	w, _ := do(t, r, http.MethodPost, "/api/v1/assessments", gin.H{
		"tourist_id": "alice", "latitude": 1.0, "longitude": 1.0,
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLatestAssessment(t *testing.T) {
	svc := &stubAssessor{}
	r := assessmentRouter(svc)

	w, _ := do(t, r, http.MethodGet, "/api/v1/tourists/alice/assessments/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.latest = &models.AssessmentResult{ID: "a-9", TouristID: "alice"}
	w, env := do(t, r, http.MethodGet, "/api/v1/tourists/alice/assessments/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"a-9"`)
}

type stubScheduler struct {
	busy map[models.ModelKind]bool
}

func (s *stubScheduler) ForceRetrain(kind models.ModelKind) models.ForceResult {
	if s.busy[kind] {
		return models.ForceResult{Kind: kind, Reason: "training cycle already in progress"}
	}
	return models.ForceResult{Kind: kind, Accepted: true}
}

func (s *stubScheduler) Kinds() []models.ModelKind {
	return models.ModelKinds
}

func (s *stubScheduler) Status() models.TrainingCycleState {
	return models.TrainingCycleState{Phase: models.PhaseIdle, CycleCount: 3}
}

type stubRuns struct {
	filter repository.TrainingRunFilter
}

func (s *stubRuns) ListRuns(_ context.Context, f repository.TrainingRunFilter) ([]models.TrainingRun, error) {
	s.filter = f
	return []models.TrainingRun{{ID: "r1", Kind: models.ModelKindAnomaly, Status: models.RunStatusCompleted}}, nil
}

type stubHistory struct{}

func (stubHistory) History(kind models.ModelKind) []models.SnapshotInfo {
	return []models.SnapshotInfo{{Kind: kind, Version: 2}, {Kind: kind, Version: 1}}
}

func trainingRouter(s *stubScheduler, runs *stubRuns) *gin.Engine {
	h := NewTrainingHandler(s, runs, stubHistory{})
	r := gin.New()
	r.GET("/api/v1/training/status", h.Status)
	r.GET("/api/v1/training/runs", h.ListRuns)
	r.POST("/api/v1/training/:kind/retrain", h.Retrain)
	r.GET("/api/v1/training/:kind/snapshots", h.Snapshots)
	return r
}

func TestRetrain(t *testing.T) {
	sched := &stubScheduler{busy: map[models.ModelKind]bool{}}
	r := trainingRouter(sched, &stubRuns{})

	w, env := do(t, r, http.MethodPost, "/api/v1/training/anomaly/retrain", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	var results []models.ForceResult
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 1)
	assert.True(t, results[0].Accepted)

	sched.busy[models.ModelKindAnomaly] = true
	w, _ = do(t, r, http.MethodPost, "/api/v1/training/anomaly/retrain", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// one kind still accepted
	w, env = do(t, r, http.MethodPost, "/api/v1/training/all/retrain", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Len(t, results, 2)

	w, _ = do(t, r, http.MethodPost, "/api/v1/training/weather/retrain", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrainingStatusAndRuns(t *testing.T) {
	runs := &stubRuns{}
	r := trainingRouter(&stubScheduler{}, runs)

	w, env := do(t, r, http.MethodGet, "/api/v1/training/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"cycle_count":3`)

	w, env = do(t, r, http.MethodGet, "/api/v1/training/runs?kind=temporal&status=failed&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ModelKindTemporal, runs.filter.Kind)
	assert.Equal(t, "failed", runs.filter.Status)
	assert.Equal(t, 5, runs.filter.Limit)
	assert.Contains(t, string(env.Data), `"r1"`)

	w, _ = do(t, r, http.MethodGet, "/api/v1/training/runs?kind=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for query, want := range map[string]int{
		"limit=10000": 500,
		"limit=-5":    50,
		"limit=0":     50,
		"limit=abc":   50,
		"":            50,
	} {
		w, env = do(t, r, http.MethodGet, "/api/v1/training/runs?"+query, nil)
		require.Equal(t, http.StatusOK, w.Code, query)
		assert.Equal(t, want, runs.filter.Limit, query)
		var page struct {
			Limit int `json:"limit"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &page), query)
		assert.Equal(t, want, page.Limit, query)
	}

	w, env = do(t, r, http.MethodGet, "/api/v1/training/temporal/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"version":2`)
}

type stubCatalog struct {
	info service.CatalogInfo
	err  error
}

func (s *stubCatalog) Info() service.CatalogInfo { return s.info }

func (s *stubCatalog) Reload(context.Context) (service.CatalogInfo, error) {
	return s.info, s.err
}

func TestZoneHandler(t *testing.T) {
	catalog := &stubCatalog{info: service.CatalogInfo{
		Zones:    []models.Zone{{ID: "cliff", Kind: models.ZoneKindRestricted, RiskLevel: 5}},
		Rejected: []models.RejectedZone{{ZoneID: "broken", Reason: "polygon is self-intersecting"}},
	}}
	h := NewZoneHandler(catalog)
	r := gin.New()
	r.GET("/api/v1/zones", h.ListZones)
	r.POST("/api/v1/zones/reload", h.Reload)

	w, env := do(t, r, http.MethodGet, "/api/v1/zones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"cliff"`)

	w, env = do(t, r, http.MethodPost, "/api/v1/zones/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"active":1`)

	catalog.err = errors.New("no such table: zones")
	w, _ = do(t, r, http.MethodPost, "/api/v1/zones/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubTouristStore struct {
	route *models.PlannedRoute
}

func (s *stubTouristStore) ListAlerts(_ context.Context, id string, limit int) ([]models.AlertRequest, error) {
	return []models.AlertRequest{{ID: "al-1", TouristID: id, Kind: models.AlertKindGeofence}}, nil
}

func (s *stubTouristStore) SaveRoute(_ context.Context, route *models.PlannedRoute) error {
	s.route = route
	return nil
}

func TestTouristHandler(t *testing.T) {
	store := &stubTouristStore{}
	h := NewTouristHandler(store, store)
	r := gin.New()
	r.GET("/api/v1/tourists/:id/alerts", h.ListAlerts)
	r.PUT("/api/v1/tourists/:id/route", h.SaveRoute)

	w, env := do(t, r, http.MethodGet, "/api/v1/tourists/alice/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"al-1"`)

	w, _ = do(t, r, http.MethodPut, "/api/v1/tourists/alice/route", gin.H{
		"name":      "old town",
		"waypoints": []gin.H{{"lat": 48.1, "lon": 11.5}, {"lat": 48.2, "lon": 11.6}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.route)
	assert.Equal(t, "alice", store.route.TouristID)
	assert.Len(t, store.route.Waypoints, 2)

	w, _ = do(t, r, http.MethodPut, "/api/v1/tourists/alice/route", gin.H{
		"waypoints": []gin.H{{"lat": 48.1, "lon": 11.5}, {"lat": 100, "lon": 11.6}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fixedVersions map[models.ModelKind]uint64

func (f fixedVersions) Versions() map[models.ModelKind]uint64 { return f }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(fixedVersions{models.ModelKindAnomaly: 4})
	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"anomaly":4`)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
