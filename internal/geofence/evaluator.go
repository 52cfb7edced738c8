package geofence

import (
	"errors"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// Evaluator answers "which zone is this coordinate in" over an immutable zone set
type Evaluator struct {
	zones []models.Zone
	index ZoneIndex
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithIndex replaces the default linear index
func WithIndex(idx ZoneIndex) Option {
	return func(e *Evaluator) {
		e.index = idx
	}
}

// NewEvaluator validates zones and builds an evaluator over the valid ones.
// Rejected zones are returned alongside; they never take part in evaluation.
func NewEvaluator(zones []models.Zone, opts ...Option) (*Evaluator, []models.RejectedZone) {
	e := &Evaluator{index: NewLinearIndex()}
	for _, opt := range opts {
		opt(e)
	}

	var rejected []models.RejectedZone
	seen := make(map[string]bool, len(zones))
	for _, z := range zones {
		if err := Validate(z); err != nil {
			var geomErr *models.InvalidZoneGeometryError
			reason := err.Error()
			if errors.As(err, &geomErr) {
				reason = geomErr.Reason
			}
			rejected = append(rejected, models.RejectedZone{ZoneID: z.ID, Reason: reason})
			continue
		}
		if seen[z.ID] {
			rejected = append(rejected, models.RejectedZone{ZoneID: z.ID, Reason: "duplicate id"})
			continue
		}
		seen[z.ID] = true

		z.Polygon = append([]spatial.Point(nil), spatial.OpenRing(z.Polygon)...)
		e.zones = append(e.zones, z)
	}

	e.index.Build(e.zones)
	return e, rejected
}

// Evaluate returns the highest-risk zone containing p.
// Restricted beats safe; then higher risk level; then strict containment over buffer; then lower id.
func (e *Evaluator) Evaluate(p spatial.Point) models.ZoneMatch {
	var best models.ZoneMatch
	for _, i := range e.index.Candidates(p) {
		z := &e.zones[i]
		inside := spatial.PointInPolygon(p, z.Polygon)
		inBuffer := false
		if !inside {
			if z.BufferMeters <= 0 || spatial.DistanceToRing(p, z.Polygon) > z.BufferMeters {
				continue
			}
			inBuffer = true
		}

		cand := models.ZoneMatch{Zone: z, InBuffer: inBuffer}
		if outranks(cand, best) {
			best = cand
		}
	}

	if best.Zone != nil {
		zone := *best.Zone
		best.Zone = &zone
	}
	return best
}

// Zones returns a copy of the accepted zones
func (e *Evaluator) Zones() []models.Zone {
	out := make([]models.Zone, len(e.zones))
	copy(out, e.zones)
	return out
}

// Len returns the number of accepted zones
func (e *Evaluator) Len() int {
	return len(e.zones)
}

func outranks(a, b models.ZoneMatch) bool {
	if b.Zone == nil {
		return true
	}
	if a.Restricted() != b.Restricted() {
		return a.Restricted()
	}
	if a.Zone.RiskLevel != b.Zone.RiskLevel {
		return a.Zone.RiskLevel > b.Zone.RiskLevel
	}
	if a.InBuffer != b.InBuffer {
		return !a.InBuffer
	}
	return a.Zone.ID < b.Zone.ID
}
