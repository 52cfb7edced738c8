package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// SnapshotStore persists published snapshots
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *models.ModelSnapshot) error
	LatestSnapshot(ctx context.Context, kind models.ModelKind) (*models.ModelSnapshot, error)
	PruneSnapshots(ctx context.Context, kind models.ModelKind, keep int) error
}

// Registry holds the current snapshot per model kind.
// Readers load a pointer without locking; publishers serialize on mu only for
// version assignment and the pointer swap, never while training.
type Registry struct {
	current     map[models.ModelKind]*atomic.Pointer[models.ModelSnapshot]
	generations int

	mu       sync.Mutex
	versions map[models.ModelKind]uint64
	history  map[models.ModelKind][]*models.ModelSnapshot
}

// NewRegistry creates a registry that retains the given number of generations per kind
func NewRegistry(generations int) *Registry {
	if generations < 1 {
		generations = 1
	}
	r := &Registry{
		current:     make(map[models.ModelKind]*atomic.Pointer[models.ModelSnapshot], len(models.ModelKinds)),
		generations: generations,
		versions:    make(map[models.ModelKind]uint64),
		history:     make(map[models.ModelKind][]*models.ModelSnapshot),
	}
	for _, k := range models.ModelKinds {
		r.current[k] = &atomic.Pointer[models.ModelSnapshot]{}
	}
	return r
}

// Current returns the latest published snapshot of kind, or nil before the first publish.
// The returned snapshot must be treated as read-only.
func (r *Registry) Current(kind models.ModelKind) *models.ModelSnapshot {
	p, ok := r.current[kind]
	if !ok {
		return nil
	}
	return p.Load()
}

// Publish assigns the next version to snap and makes it current.
// snap must not be modified by the caller afterwards.
func (r *Registry) Publish(snap *models.ModelSnapshot) (*models.ModelSnapshot, error) {
	if snap == nil {
		return nil, errors.New("publish: nil snapshot")
	}
	p, ok := r.current[snap.Kind]
	if !ok {
		return nil, fmt.Errorf("publish: %w: %q", models.ErrUnknownModelKind, snap.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions[snap.Kind]++
	snap.Version = r.versions[snap.Kind]
	r.remember(snap)
	p.Store(snap)
	return snap, nil
}

// Restore installs a previously persisted snapshot without bumping its version.
// Later publishes continue from its version.
func (r *Registry) Restore(snap *models.ModelSnapshot) error {
	if snap == nil {
		return nil
	}
	p, ok := r.current[snap.Kind]
	if !ok {
		return fmt.Errorf("restore: %w: %q", models.ErrUnknownModelKind, snap.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Version <= r.versions[snap.Kind] {
		return nil
	}
	r.versions[snap.Kind] = snap.Version
	r.remember(snap)
	p.Store(snap)
	return nil
}

// WarmStart restores the latest persisted snapshot of every kind
func (r *Registry) WarmStart(ctx context.Context, store SnapshotStore) (map[models.ModelKind]uint64, error) {
	restored := make(map[models.ModelKind]uint64)
	for _, k := range models.ModelKinds {
		snap, err := store.LatestSnapshot(ctx, k)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("warm start %s: %w", k, err)
		}
		if err := r.Restore(snap); err != nil {
			return restored, err
		}
		restored[k] = snap.Version
	}
	return restored, nil
}

// Versions returns the current version of every kind (0 means none published)
func (r *Registry) Versions() map[models.ModelKind]uint64 {
	out := make(map[models.ModelKind]uint64, len(r.current))
	for k, p := range r.current {
		if s := p.Load(); s != nil {
			out[k] = s.Version
		} else {
			out[k] = 0
		}
	}
	return out
}

// History lists retained snapshot metadata for kind, newest first
func (r *Registry) History(kind models.ModelKind) []models.SnapshotInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.history[kind]
	out := make([]models.SnapshotInfo, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i].Info())
	}
	return out
}

// Generations returns the retention depth
func (r *Registry) Generations() int {
	return r.generations
}

// remember appends to history and drops generations beyond the limit; caller holds mu
func (r *Registry) remember(snap *models.ModelSnapshot) {
	h := append(r.history[snap.Kind], snap)
	if len(h) > r.generations {
		drop := len(h) - r.generations
		for i := 0; i < drop; i++ {
			h[i] = nil
		}
		h = append([]*models.ModelSnapshot(nil), h[drop:]...)
	}
	r.history[snap.Kind] = h
}
