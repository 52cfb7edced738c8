package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/analysis/anomaly"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/features"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/fusion"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/temporal"
	"github.com/jengzang/tourist-safety-backend/internal/geofence"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// Degraded inputs reported on an AssessmentResult
const (
	DegradedHistory  = "history"
	DegradedDensity  = "density"
	DegradedRoute    = "route"
	DegradedBaseline = "baseline"
	DegradedRecord   = "record"
	DegradedPersist  = "persist"
)

// LocationStore is the location part of the persistence collaborator
type LocationStore interface {
	Insert(ctx context.Context, s *models.LocationSample) error
	RecentLocations(ctx context.Context, touristID string, w models.Window) ([]models.LocationSample, error)
	CountNearbySamples(ctx context.Context, excludeTourist string, lat, lon, radius float64, since, until time.Time) (int, error)
}

// RouteStore returns planned routes
type RouteStore interface {
	PlannedRoute(ctx context.Context, touristID string) (*models.PlannedRoute, error)
}

// BaselineStore returns persisted temporal baselines
type BaselineStore interface {
	GetTouristBaseline(ctx context.Context, touristID string) (*models.Baseline, error)
}

// AssessmentStore persists assessment results
type AssessmentStore interface {
	SaveAssessment(ctx context.Context, a *models.AssessmentResult) error
	LatestAssessment(ctx context.Context, touristID string) (*models.AssessmentResult, error)
}

// AlertDispatcher hands alert requests to the alerting collaborator
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *models.AlertRequest) error
}

// SnapshotReader returns the current model snapshots without blocking
type SnapshotReader interface {
	Current(kind models.ModelKind) *models.ModelSnapshot
}

// ZoneProvider returns the active zone evaluator
type ZoneProvider interface {
	Evaluator() *geofence.Evaluator
}

// AssessmentConfig tunes the orchestrator
type AssessmentConfig struct {
	Window       models.Window // MaxSamples and MaxAge; Until is set per assessment
	FetchTimeout time.Duration // per external read
	Thresholds   fusion.Thresholds
}

// AssessmentDeps are the collaborators of the orchestrator. Routes, Baselines,
// Results and Alerts are optional.
type AssessmentDeps struct {
	Locations LocationStore
	Routes    RouteStore
	Baselines BaselineStore
	Results   AssessmentStore
	Alerts    AlertDispatcher
	Zones     ZoneProvider
	Snapshots SnapshotReader
	Extractor *features.Extractor
	Temporal  *temporal.Model
}

// AssessmentService scores location updates. It holds no per-request state and
// is safe for concurrent use across tourists.
type AssessmentService struct {
	cfg    AssessmentConfig
	deps   AssessmentDeps
	logger *zap.Logger
	now    func() time.Time
}

// NewAssessmentService creates the orchestrator
func NewAssessmentService(cfg AssessmentConfig, deps AssessmentDeps, logger *zap.Logger) *AssessmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window.MaxSamples <= 0 {
		cfg.Window.MaxSamples = 10
	}
	if cfg.Window.MaxAge <= 0 {
		cfg.Window.MaxAge = 2 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 500 * time.Millisecond
	}
	if cfg.Thresholds.SpeedHighKmh <= 0 {
		cfg.Thresholds = fusion.DefaultThresholds()
	}
	if deps.Extractor == nil {
		deps.Extractor = features.NewExtractor(features.DefaultConfig())
	}
	if deps.Temporal == nil {
		deps.Temporal = temporal.NewModel(temporal.DefaultConfig())
	}
	return &AssessmentService{cfg: cfg, deps: deps, logger: logger.Named("assessment"), now: time.Now}
}

// RecordAndAssess stores the sample as part of the tourist's history and assesses it.
// A failed write is reported as degraded, not as an error.
func (s *AssessmentService) RecordAndAssess(ctx context.Context, sample models.LocationSample) (*models.AssessmentResult, error) {
	if err := validateSample(sample); err != nil {
		return nil, err
	}

	var degraded []string
	if err := s.deps.Locations.Insert(ctx, &sample); err != nil {
		s.logger.Warn("Failed to record location", zap.String("tourist_id", sample.TouristID), zap.Error(err))
		degraded = append(degraded, DegradedRecord)
	}
	return s.assess(ctx, sample, degraded)
}

// Assess scores one location update. Only invalid input is an error; missing
// models, slow stores and missing history lower confidence instead.
func (s *AssessmentService) Assess(ctx context.Context, sample models.LocationSample) (*models.AssessmentResult, error) {
	if err := validateSample(sample); err != nil {
		return nil, err
	}
	return s.assess(ctx, sample, nil)
}

// Latest returns the most recent stored result of touristID
func (s *AssessmentService) Latest(ctx context.Context, touristID string) (*models.AssessmentResult, error) {
	if s.deps.Results == nil {
		return nil, models.ErrNotFound
	}
	return s.deps.Results.LatestAssessment(ctx, touristID)
}

func validateSample(sample models.LocationSample) error {
	if sample.TouristID == "" {
		return models.ErrMissingTouristID
	}
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("%w: lat=%v lon=%v", err, sample.Latitude, sample.Longitude)
	}
	return nil
}

func (s *AssessmentService) assess(ctx context.Context, sample models.LocationSample, degraded []string) (*models.AssessmentResult, error) {
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = s.now().UTC()
	}
	tid := sample.TouristID
	point := sample.Point()
	log := s.logger.With(zap.String("tourist_id", tid))

	history, err := s.recentLocations(ctx, sample)
	if err != nil {
		log.Warn("Recent locations unavailable, assessing with partial window", zap.Error(err))
		degraded = append(degraded, DegradedHistory)
	}
	window := mergeWindow(history, sample, s.cfg.Window.MaxSamples)

	nearby, err := s.nearbyCount(ctx, sample)
	if err != nil {
		log.Debug("Density unavailable", zap.Error(err))
		degraded = append(degraded, DegradedDensity)
	}

	route, err := s.route(ctx, tid)
	if err != nil {
		log.Debug("Planned route unavailable", zap.Error(err))
		degraded = append(degraded, DegradedRoute)
	}

	zone := s.deps.Zones.Evaluator().Evaluate(point)

	fv := s.deps.Extractor.Extract(tid, window, features.Context{
		Zone:        zone,
		Route:       route,
		NearbyCount: nearby,
	})

	// snapshots are read once and held for the rest of the assessment
	anomalySnap := s.deps.Snapshots.Current(models.ModelKindAnomaly)
	temporalSnap := s.deps.Snapshots.Current(models.ModelKindTemporal)

	anomalyScore := anomaly.Assess(anomalySnap, fv)

	baseline, err := s.baseline(ctx, temporalSnap, tid)
	if err != nil {
		log.Debug("Stored baseline unavailable", zap.Error(err))
		degraded = append(degraded, DegradedBaseline)
	}
	var temporalVersion uint64
	if temporalSnap != nil {
		temporalVersion = temporalSnap.Version
	}
	temporalScore := s.deps.Temporal.Assess(
		s.deps.Extractor.Trajectory(window),
		s.deps.Extractor.Fullness(len(window)),
		baseline,
		temporalVersion,
	)

	speed := fv.LastSegmentSpeed
	if sample.Speed != nil {
		speed = *sample.Speed
	}

	fused := fusion.Fuse(fusion.Input{
		Zone:     zone,
		Anomaly:  anomalyScore,
		Temporal: temporalScore,
		SpeedKmh: speed,
	}, s.cfg.Thresholds)

	result := &models.AssessmentResult{
		ID:                uuid.NewString(),
		TouristID:         tid,
		LocationRef:       sample.ID,
		Latitude:          sample.Latitude,
		Longitude:         sample.Longitude,
		SafetyScore:       fused.SafetyScore,
		Severity:          fused.Severity,
		ZoneViolation:     fused.ZoneViolation,
		AnomalyScore:      anomalyScore.Score,
		IsAnomalous:       anomalyScore.Anomalous,
		TemporalRiskScore: temporalScore.Score,
		Confidence:        fused.Confidence,
		ModelVersions: map[models.ModelKind]uint64{
			models.ModelKindAnomaly:  snapshotVersion(anomalySnap),
			models.ModelKindTemporal: temporalVersion,
		},
		Features:   &fv,
		Degraded:   degraded,
		ComputedAt: s.now().UTC(),
	}
	if zone.Found() {
		result.ZoneID = zone.Zone.ID
	}

	if fused.Alert != nil {
		result.Alert = s.dispatchAlert(ctx, result, fused.Alert)
	}

	if s.deps.Results != nil {
		if err := s.deps.Results.SaveAssessment(ctx, result); err != nil {
			log.Warn("Failed to persist assessment", zap.String("assessment_id", result.ID), zap.Error(err))
			result.Degraded = append(result.Degraded, DegradedPersist)
		}
	}

	log.Debug("Assessment computed",
		zap.Int("score", result.SafetyScore),
		zap.String("severity", string(result.Severity)),
		zap.Bool("zone_violation", result.ZoneViolation),
		zap.Bool("anomaly_cold", anomalyScore.Cold),
		zap.Bool("temporal_cold", temporalScore.Cold),
	)
	return result, nil
}

func (s *AssessmentService) dispatchAlert(ctx context.Context, result *models.AssessmentResult, d *fusion.AlertDecision) *models.AlertRequest {
	alert := &models.AlertRequest{
		ID:           uuid.NewString(),
		TouristID:    result.TouristID,
		AssessmentID: result.ID,
		Kind:         d.Kind,
		Severity:     d.Severity,
		Message:      d.Message,
		Latitude:     result.Latitude,
		Longitude:    result.Longitude,
		ZoneID:       result.ZoneID,
		CreatedAt:    result.ComputedAt,
	}
	if s.deps.Alerts == nil {
		return alert
	}
	if err := s.deps.Alerts.Dispatch(ctx, alert); err != nil {
		s.logger.Error("Alert delivery failed",
			zap.String("alert_id", alert.ID),
			zap.String("tourist_id", alert.TouristID),
			zap.Error(err),
		)
	}
	return alert
}

func (s *AssessmentService) recentLocations(ctx context.Context, sample models.LocationSample) ([]models.LocationSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	w := s.cfg.Window
	w.Until = sample.CapturedAt
	history, err := s.deps.Locations.RecentLocations(ctx, sample.TouristID, w)
	if err != nil {
		return nil, &models.DataSourceTimeoutError{Op: "recent locations", Attempts: 1, Err: err}
	}
	return history, nil
}

// nearbyCount returns nil when the aggregate could not be read
func (s *AssessmentService) nearbyCount(ctx context.Context, sample models.LocationSample) (*int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	n, err := s.deps.Locations.CountNearbySamples(ctx, sample.TouristID, sample.Latitude, sample.Longitude,
		features.DensityRadiusMeters, sample.CapturedAt.Add(-features.DensityWindow), sample.CapturedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *AssessmentService) route(ctx context.Context, touristID string) ([]spatial.Point, error) {
	if s.deps.Routes == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	r, err := s.deps.Routes.PlannedRoute(ctx, touristID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Waypoints, nil
}

// baseline prefers the current snapshot and falls back to the stored baseline
func (s *AssessmentService) baseline(ctx context.Context, snap *models.ModelSnapshot, touristID string) (*models.Baseline, error) {
	if b := temporal.Lookup(snap, touristID); b != nil {
		return b, nil
	}
	if s.deps.Baselines == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	b, err := s.deps.Baselines.GetTouristBaseline(ctx, touristID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func snapshotVersion(s *models.ModelSnapshot) uint64 {
	if s == nil {
		return 0
	}
	return s.Version
}

// mergeWindow adds sample to history (unless already present), orders by time and
// keeps the newest limit samples
func mergeWindow(history []models.LocationSample, sample models.LocationSample, limit int) []models.LocationSample {
	out := make([]models.LocationSample, 0, len(history)+1)
	present := false
	for _, h := range history {
		if sameSample(h, sample) {
			present = true
		}
		out = append(out, h)
	}
	if !present {
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func sameSample(a, b models.LocationSample) bool {
	if a.ID > 0 && b.ID > 0 {
		return a.ID == b.ID
	}
	return a.CapturedAt.Equal(b.CapturedAt) && a.Latitude == b.Latitude && a.Longitude == b.Longitude
}
