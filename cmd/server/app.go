package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/alerting"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/anomaly"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/features"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/fusion"
	"github.com/jengzang/tourist-safety-backend/internal/analysis/temporal"
	"github.com/jengzang/tourist-safety-backend/internal/config"
	"github.com/jengzang/tourist-safety-backend/internal/database"
	"github.com/jengzang/tourist-safety-backend/internal/logger"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/repository"
	"github.com/jengzang/tourist-safety-backend/internal/service"
	"github.com/jengzang/tourist-safety-backend/internal/training"
)

const serviceName = "tourist-safety"

// repositories 数据访问层
type repositories struct {
	locations   *repository.LocationRepository
	zones       *repository.ZoneRepository
	routes      *repository.RouteRepository
	snapshots   *repository.ModelRepository
	runs        *repository.TrainingRunRepository
	assessments *repository.AssessmentRepository
}

// app holds the wired process components
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	repos  repositories

	registry   *training.Registry
	catalog    *service.ZoneCatalog
	scheduler  *training.Scheduler
	assessment *service.AssessmentService
}

// openStore loads config, builds the logger and opens the migrated database
func openStore(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrationManager(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: log,
		db:     db,
		repos: repositories{
			locations:   repository.NewLocationRepository(db),
			zones:       repository.NewZoneRepository(db),
			routes:      repository.NewRouteRepository(db),
			snapshots:   repository.NewModelRepository(db),
			runs:        repository.NewTrainingRunRepository(db),
			assessments: repository.NewAssessmentRepository(db),
		},
	}, nil
}

// newApp wires every component on top of the store
func newApp(ctx context.Context) (*app, error) {
	a, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	a.registry = training.NewRegistry(cfg.Training.Generations)
	restored, err := a.registry.WarmStart(ctx, a.repos.snapshots)
	if err != nil {
		a.Close()
		return nil, err
	}
	for kind, v := range restored {
		a.logger.Info("Restored model snapshot", zap.String("kind", string(kind)), zap.Uint64("version", v))
	}

	a.catalog = service.NewZoneCatalog(a.repos.zones, nil, a.logger)
	if cfg.ZonesFile != "" {
		n, _, err := service.ImportZonesFile(ctx, cfg.ZonesFile, a.repos.zones, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.logger.Info("Imported zones", zap.String("file", cfg.ZonesFile), zap.Int("count", n))
	}
	if _, err := a.catalog.Reload(ctx); err != nil {
		a.Close()
		return nil, err
	}

	window := models.Window{MaxSamples: cfg.Window.MaxSamples, MaxAge: cfg.Window.MaxAge}
	extractor := features.NewExtractor(features.Config{Location: cfg.Location()})
	temporalModel := temporal.NewModel(temporal.Config{
		MinSamples: cfg.Training.MinSamples,
		Retention:  cfg.Training.BaselineRetention,
	})

	trainers := []training.Trainer{
		training.NewAnomalyTrainer(anomaly.Config{
			Trees:         cfg.Training.Trees,
			SampleSize:    cfg.Training.SampleSize,
			Seed:          cfg.Training.Seed,
			Contamination: cfg.Training.Contamination,
			MinSamples:    cfg.Training.MinSamples,
		}),
		training.NewTemporalTrainer(temporalModel),
	}
	corpus := training.NewCorpusBuilder(a.repos.locations, a.catalog, a.repos.routes, extractor, window, a.logger)

	a.scheduler = training.NewScheduler(training.SchedulerConfig{
		Interval: cfg.Training.Interval,
		Lookback: cfg.Training.Lookback,
		Fetch: training.RetryPolicy{
			Attempts: cfg.Training.FetchAttempts,
			Backoff:  cfg.Training.FetchBackoff,
			Timeout:  cfg.Training.FetchTimeout,
		},
		OnStart: cfg.Training.OnStart,
	}, corpus, a.registry, trainers, a.logger,
		training.WithRunRecorder(a.repos.runs),
		training.WithPublishHook(a.persistSnapshot),
	)

	dispatcher, err := a.newDispatcher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.assessment = service.NewAssessmentService(service.AssessmentConfig{
		Window:       window,
		FetchTimeout: cfg.Assessment.FetchTimeout,
		Thresholds: fusion.Thresholds{
			SpeedMediumKmh: cfg.Scoring.SpeedMediumKmh,
			SpeedHighKmh:   cfg.Scoring.SpeedHighKmh,
		},
	}, service.AssessmentDeps{
		Locations: a.repos.locations,
		Routes:    a.repos.routes,
		Baselines: a.repos.snapshots,
		Results:   a.repos.assessments,
		Alerts:    dispatcher,
		Zones:     a.catalog,
		Snapshots: a.registry,
		Extractor: extractor,
		Temporal:  temporalModel,
	}, a.logger)

	return a, nil
}

// newDispatcher uses redis for cool-down keys and the alert stream when configured
func (a *app) newDispatcher(ctx context.Context) (*alerting.Dispatcher, error) {
	cfg := a.cfg
	sinks := alerting.MultiSink{
		alerting.NewStoreSink(a.repos.assessments),
		alerting.NewLogSink(a.logger),
	}

	if cfg.Redis.Addr == "" {
		a.logger.Info("Redis not configured, alert cool-down kept in memory")
		return alerting.NewDispatcher(alerting.NewMemoryDeduplicator(cfg.Assessment.AlertCooldown), sinks, a.logger), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	sinks = append(alerting.MultiSink{alerting.NewStreamSink(a.redis, cfg.Redis.AlertStream, cfg.Redis.StreamMaxLen)}, sinks...)
	dedup := alerting.NewRedisDeduplicator(a.redis, "safety:alert:cooldown:", cfg.Assessment.AlertCooldown)
	return alerting.NewDispatcher(dedup, sinks, a.logger), nil
}

// persistSnapshot stores a published snapshot and prunes old generations
func (a *app) persistSnapshot(ctx context.Context, snap *models.ModelSnapshot) error {
	if err := a.repos.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	return a.repos.snapshots.PruneSnapshots(ctx, snap.Kind, a.registry.Generations())
}

// pruneHistory deletes samples older than anything training or scoring reads
func (a *app) pruneHistory(ctx context.Context) {
	keep := a.cfg.Training.Lookback + a.cfg.Window.MaxAge
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.repos.locations.DeleteBefore(ctx, time.Now().Add(-keep))
			if err != nil {
				a.logger.Warn("Failed to prune location history", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("Pruned location history", zap.Int64("deleted", n))
			}
		}
	}
}

// Close releases the store and redis connections
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
