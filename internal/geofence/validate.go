package geofence

import (
	"fmt"
	"math"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// MaxLongitudeSpan is the widest zone accepted; wider rings are assumed to cross the antimeridian
const MaxLongitudeSpan = 180.0

// Validate checks zone geometry and attributes, returning *models.InvalidZoneGeometryError
func Validate(z models.Zone) error {
	reject := func(format string, args ...interface{}) error {
		return &models.InvalidZoneGeometryError{ZoneID: z.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if z.ID == "" {
		return reject("missing id")
	}
	if !z.Kind.Valid() {
		return reject("unknown kind %q", z.Kind)
	}
	if z.RiskLevel < models.MinRiskLevel || z.RiskLevel > models.MaxRiskLevel {
		return reject("risk level %d outside %d-%d", z.RiskLevel, models.MinRiskLevel, models.MaxRiskLevel)
	}
	if z.BufferMeters < 0 || math.IsNaN(z.BufferMeters) || math.IsInf(z.BufferMeters, 0) {
		return reject("buffer %v must be a non-negative number", z.BufferMeters)
	}

	ring := spatial.OpenRing(z.Polygon)
	if len(ring) < 3 {
		return reject("polygon has %d vertices, need at least 3", len(ring))
	}
	for i, p := range ring {
		if !p.Valid() {
			return reject("vertex %d (%v, %v) out of range", i, p.Lat, p.Lon)
		}
	}
	if span := spatial.LongitudeSpan(ring); span >= MaxLongitudeSpan {
		return reject("longitude span %.1f° crosses the antimeridian or mixes conventions", span)
	}
	if spatial.SelfIntersects(ring) {
		return reject("polygon is self-intersecting")
	}
	if degenerate(ring) {
		return reject("polygon has zero area")
	}
	return nil
}

// degenerate reports a ring whose vertices are all collinear
func degenerate(ring []spatial.Point) bool {
	var area float64
	j := len(ring) - 1
	for i := range ring {
		area += (ring[j].Lon + ring[i].Lon) * (ring[j].Lat - ring[i].Lat)
		j = i
	}
	return math.Abs(area) < 1e-14
}
