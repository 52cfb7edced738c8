package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// ErrCycleInProgress is returned when a cycle for the same kind is already running
var ErrCycleInProgress = errors.New("training cycle already in progress")

// SchedulerConfig controls the retraining loop
type SchedulerConfig struct {
	Interval time.Duration
	Lookback time.Duration
	Fetch    RetryPolicy
	OnStart  bool
}

// Scheduler periodically retrains every registered model kind in its own loop and
// publishes results to the registry. Scoring never waits on it.
type Scheduler struct {
	cfg      SchedulerConfig
	source   CorpusSource
	registry *Registry
	state    *State
	runs     RunRecorder
	hooks    []PublishHook
	logger   *zap.Logger
	now      func() time.Time

	trainers   map[models.ModelKind]Trainer
	order      []models.ModelKind
	inProgress map[models.ModelKind]*atomic.Bool

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithRunRecorder records each cycle as a training run
func WithRunRecorder(r RunRecorder) SchedulerOption {
	return func(s *Scheduler) { s.runs = r }
}

// WithPublishHook adds a hook called after every publish
func WithPublishHook(h PublishHook) SchedulerOption {
	return func(s *Scheduler) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler for trainers
func NewScheduler(cfg SchedulerConfig, source CorpusSource, registry *Registry, trainers []Trainer, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cfg:        cfg,
		source:     source,
		registry:   registry,
		logger:     logger.Named("scheduler"),
		now:        time.Now,
		trainers:   make(map[models.ModelKind]Trainer, len(trainers)),
		inProgress: make(map[models.ModelKind]*atomic.Bool, len(trainers)),
		baseCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range trainers {
		k := t.Kind()
		if _, dup := s.trainers[k]; dup {
			continue
		}
		s.trainers[k] = t
		s.order = append(s.order, k)
		s.inProgress[k] = &atomic.Bool{}
	}
	s.state = NewState(s.order, s.now())
	return s
}

// Start launches one loop per model kind. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	for _, k := range s.order {
		s.wg.Add(1)
		go s.loop(s.baseCtx, k)
	}
	s.logger.Info("Training scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("kinds", len(s.order)),
	)
}

// Stop cancels the loops and waits for running cycles to wind down.
// A cycle interrupted between fetch and fit is abandoned without publishing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("Training scheduler stopped")
}

// ForceRetrain starts a cycle for kind immediately in the background.
// It is rejected when a cycle for the same kind is already running.
func (s *Scheduler) ForceRetrain(kind models.ModelKind) models.ForceResult {
	flag, ok := s.inProgress[kind]
	if !ok {
		return models.ForceResult{Kind: kind, Reason: models.ErrUnknownModelKind.Error()}
	}
	if !flag.CompareAndSwap(false, true) {
		return models.ForceResult{Kind: kind, Reason: ErrCycleInProgress.Error()}
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer flag.Store(false)
		_ = s.cycle(ctx, kind, models.TriggerForced)
	}()
	return models.ForceResult{Kind: kind, Accepted: true}
}

// RunOnce runs one cycle for kind synchronously, sharing the in-progress guard
func (s *Scheduler) RunOnce(ctx context.Context, kind models.ModelKind, trigger string) error {
	flag, ok := s.inProgress[kind]
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUnknownModelKind, kind)
	}
	if !flag.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer flag.Store(false)
	return s.cycle(ctx, kind, trigger)
}

// Kinds returns the scheduled model kinds in order
func (s *Scheduler) Kinds() []models.ModelKind {
	return append([]models.ModelKind(nil), s.order...)
}

// Status returns a copy of the training state
func (s *Scheduler) Status() models.TrainingCycleState {
	st := s.state.Snapshot()
	for i := range st.Kinds {
		if flag, ok := s.inProgress[st.Kinds[i].Kind]; ok {
			st.Kinds[i].InProgress = st.Kinds[i].InProgress || flag.Load()
		}
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, kind models.ModelKind) {
	defer s.wg.Done()

	if s.cfg.OnStart {
		s.tryCycle(ctx, kind, models.TriggerStartup)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.state.setNext(kind, s.now().Add(s.cfg.Interval))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryCycle(ctx, kind, models.TriggerScheduled)
		}
	}
}

func (s *Scheduler) tryCycle(ctx context.Context, kind models.ModelKind, trigger string) {
	err := s.RunOnce(ctx, kind, trigger)
	if errors.Is(err, ErrCycleInProgress) {
		s.logger.Debug("Skipping scheduled cycle, another is running", zap.String("kind", string(kind)))
	}
}

// cycle runs FETCHING -> TRAINING -> PUBLISHING for one kind. Caller holds the kind's flag.
func (s *Scheduler) cycle(ctx context.Context, kind models.ModelKind, trigger string) error {
	trainer := s.trainers[kind]
	start := s.now()
	log := s.logger.With(zap.String("kind", string(kind)), zap.String("trigger", trigger))

	run := &models.TrainingRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: start,
	}
	s.recordStart(run)
	s.state.begin(kind, start)

	since := start.Add(-s.cfg.Lookback)
	corpus, err := withRetry(ctx, "corpus fetch", s.cfg.Fetch, func(ctx context.Context) ([]models.FeatureVector, error) {
		return s.source.Corpus(ctx, since)
	})
	if err != nil {
		log.Warn("Training data fetch failed, keeping current snapshot", zap.Error(err))
		return s.failed(kind, run, err)
	}
	run.SampleCount = len(corpus)

	if err := ctx.Err(); err != nil {
		log.Info("Training cycle abandoned before fit")
		return s.failed(kind, run, fmt.Errorf("abandoned: %w", err))
	}

	s.state.setPhase(kind, models.PhaseTraining)
	snap, err := trainer.Fit(ctx, corpus, s.registry.Current(kind), s.now())
	if err != nil {
		var insufficient *models.InsufficientDataError
		if errors.As(err, &insufficient) {
			log.Info("Training skipped", zap.Int("have", insufficient.Have), zap.Int("need", insufficient.Need))
			s.state.skip(kind, err.Error())
			s.recordFinish(run, models.RunStatusSkipped, err)
			return err
		}
		log.Error("Training failed", zap.Error(err))
		return s.failed(kind, run, err)
	}

	if err := ctx.Err(); err != nil {
		log.Info("Training cycle abandoned before publish")
		return s.failed(kind, run, fmt.Errorf("abandoned: %w", err))
	}

	s.state.setPhase(kind, models.PhasePublishing)
	published, err := s.registry.Publish(snap)
	if err != nil {
		return s.failed(kind, run, err)
	}
	for _, hook := range s.hooks {
		if herr := hook(ctx, published); herr != nil {
			log.Warn("Publish hook failed", zap.Uint64("version", published.Version), zap.Error(herr))
		}
	}

	run.Version = published.Version
	s.state.complete(kind, published.Version, published.TrainedAt)
	s.recordFinish(run, models.RunStatusCompleted, nil)
	log.Info("Model published",
		zap.Uint64("version", published.Version),
		zap.Int("samples", published.TrainingSampleCount),
		zap.Duration("took", s.now().Sub(start)),
	)
	return nil
}

func (s *Scheduler) failed(kind models.ModelKind, run *models.TrainingRun, err error) error {
	s.state.fail(kind, err, s.now())
	s.recordFinish(run, models.RunStatusFailed, err)
	return err
}

func (s *Scheduler) recordStart(run *models.TrainingRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.StartRun(context.Background(), run); err != nil {
		s.logger.Warn("Failed to record training run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Scheduler) recordFinish(run *models.TrainingRun, status string, cause error) {
	finished := s.now()
	run.Status = status
	run.FinishedAt = &finished
	if cause != nil {
		run.ErrorMessage = cause.Error()
	}
	if s.runs == nil {
		return
	}
	// recorded even when the cycle context was cancelled
	if err := s.runs.FinishRun(context.Background(), run); err != nil {
		s.logger.Warn("Failed to finish training run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
