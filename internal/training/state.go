package training

import (
	"sync"
	"time"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// State is the lifecycle-scoped training state owned by the scheduler.
// It is created once per process and only ever read through Snapshot.
type State struct {
	mu        sync.Mutex
	startedAt time.Time
	kinds     map[models.ModelKind]*models.KindTrainingStatus
	order     []models.ModelKind

	cycles        int64
	failures      int64
	lastFailure   string
	lastFailureAt *time.Time
	lastRunAt     *time.Time
}

// NewState creates an IDLE state for the given kinds
func NewState(kinds []models.ModelKind, now time.Time) *State {
	s := &State{
		startedAt: now,
		kinds:     make(map[models.ModelKind]*models.KindTrainingStatus, len(kinds)),
		order:     append([]models.ModelKind(nil), kinds...),
	}
	for _, k := range kinds {
		s.kinds[k] = &models.KindTrainingStatus{Kind: k, Phase: models.PhaseIdle}
	}
	return s
}

func (s *State) begin(kind models.ModelKind, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kinds[kind]
	ks.InProgress = true
	ks.Phase = models.PhaseFetching
	ks.LastRunAt = timePtr(now)
	s.lastRunAt = timePtr(now)
}

func (s *State) setPhase(kind models.ModelKind, phase models.TrainingPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind].Phase = phase
}

func (s *State) complete(kind models.ModelKind, version uint64, trainedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kinds[kind]
	ks.Phase = models.PhaseIdle
	ks.InProgress = false
	ks.Version = version
	ks.LastTrainedAt = timePtr(trainedAt)
	ks.LastOutcome = models.RunStatusCompleted
	ks.LastError = ""
	ks.CycleCount++
	s.cycles++
}

// skip ends a cycle that had nothing to train on; it is not a failure
func (s *State) skip(kind models.ModelKind, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kinds[kind]
	ks.Phase = models.PhaseIdle
	ks.InProgress = false
	ks.LastOutcome = models.RunStatusSkipped
	ks.LastError = reason
	ks.CycleCount++
	s.cycles++
}

// fail records the error and returns to IDLE; LastOutcome keeps the failure visible
func (s *State) fail(kind models.ModelKind, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kinds[kind]
	ks.LastOutcome = models.RunStatusFailed
	ks.LastError = err.Error()
	ks.LastFailureAt = timePtr(now)
	ks.FailureCount++
	ks.CycleCount++

	s.cycles++
	s.failures++
	s.lastFailure = string(kind) + ": " + err.Error()
	s.lastFailureAt = timePtr(now)

	ks.Phase = models.PhaseIdle
	ks.InProgress = false
}

func (s *State) setNext(kind models.ModelKind, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind].NextRunAt = timePtr(next)
}

// Snapshot returns a consistent copy of the state
func (s *State) Snapshot() models.TrainingCycleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := models.TrainingCycleState{
		Phase:         models.PhaseIdle,
		StartedAt:     s.startedAt,
		LastRunAt:     copyTime(s.lastRunAt),
		CycleCount:    s.cycles,
		FailureCount:  s.failures,
		LastFailure:   s.lastFailure,
		LastFailureAt: copyTime(s.lastFailureAt),
		Kinds:         make([]models.KindTrainingStatus, 0, len(s.order)),
	}

	for _, k := range s.order {
		ks := *s.kinds[k]
		ks.LastTrainedAt = copyTime(ks.LastTrainedAt)
		ks.LastRunAt = copyTime(ks.LastRunAt)
		ks.NextRunAt = copyTime(ks.NextRunAt)
		ks.LastFailureAt = copyTime(ks.LastFailureAt)
		out.Kinds = append(out.Kinds, ks)

		if out.Phase == models.PhaseIdle && ks.Phase != models.PhaseIdle {
			out.Phase = ks.Phase
		}
		if ks.NextRunAt != nil && (out.NextRunAt == nil || ks.NextRunAt.Before(*out.NextRunAt)) {
			out.NextRunAt = copyTime(ks.NextRunAt)
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
