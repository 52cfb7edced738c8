package geofence

import (
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// ZoneIndex narrows the zones that may contain a point.
// Candidates may over-report; the evaluator runs the exact test on each.
type ZoneIndex interface {
	Build(zones []models.Zone)
	Candidates(p spatial.Point) []int
}

// LinearIndex returns every zone. Fine for small zone catalogs.
type LinearIndex struct {
	all []int
}

// NewLinearIndex creates an empty linear index
func NewLinearIndex() *LinearIndex {
	return &LinearIndex{}
}

func (l *LinearIndex) Build(zones []models.Zone) {
	l.all = make([]int, len(zones))
	for i := range zones {
		l.all[i] = i
	}
}

func (l *LinearIndex) Candidates(spatial.Point) []int {
	return l.all
}

// DefaultIndexPrecision gives ~4 km cells
const DefaultIndexPrecision = 5

// maxCellsPerZone bounds how many buckets one zone may occupy
const maxCellsPerZone = 256

// GeohashIndex buckets zones by the geohash cells their buffered bounding box touches
type GeohashIndex struct {
	precision int
	cells     map[string][]int
	oversize  []int // zones too large to bucket, always candidates
}

// NewGeohashIndex creates a geohash bucket index at the given precision
func NewGeohashIndex(precision int) *GeohashIndex {
	if precision < 1 {
		precision = DefaultIndexPrecision
	}
	return &GeohashIndex{precision: precision}
}

func (g *GeohashIndex) Build(zones []models.Zone) {
	g.cells = make(map[string][]int)
	g.oversize = nil

	for i, z := range zones {
		box := spatial.BoundingBox(z.Polygon).Expand(z.BufferMeters)
		cover, ok := spatial.GeohashCover(box, g.precision, maxCellsPerZone)
		if !ok {
			g.oversize = append(g.oversize, i)
			continue
		}
		for _, h := range cover {
			g.cells[h] = append(g.cells[h], i)
		}
	}
}

func (g *GeohashIndex) Candidates(p spatial.Point) []int {
	bucket := g.cells[spatial.EncodeGeohash(p.Lat, p.Lon, g.precision)]
	if len(g.oversize) == 0 {
		return bucket
	}
	out := make([]int, 0, len(bucket)+len(g.oversize))
	out = append(out, bucket...)
	return append(out, g.oversize...)
}
