package spatial

import (
	"math"

	"github.com/golang/geo/s2"
)

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
	MetersPerDegree   = EarthRadiusMeters * math.Pi / 180
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Distance is HaversineDistance over Points
func Distance(a, b Point) float64 {
	return HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Projection is a local equirectangular projection centred on a reference latitude.
// Good enough for city-scale geometry; error grows towards the poles.
type Projection struct {
	originLat float64
	originLon float64
	cosLat    float64
}

// NewProjection creates a projection anchored at origin
func NewProjection(origin Point) Projection {
	return Projection{
		originLat: origin.Lat,
		originLon: origin.Lon,
		cosLat:    math.Cos(origin.Lat * math.Pi / 180),
	}
}

// Project maps a point to planar meters (x east, y north) relative to the origin
func (p Projection) Project(pt Point) (x, y float64) {
	x = (pt.Lon - p.originLon) * MetersPerDegree * p.cosLat
	y = (pt.Lat - p.originLat) * MetersPerDegree
	return x, y
}

// SegmentDistance returns the planar distance in meters from pt to the segment a-b
// under a local projection centred on pt.
func SegmentDistance(pt, a, b Point) float64 {
	proj := NewProjection(pt)
	ax, ay := proj.Project(a)
	bx, by := proj.Project(b)

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}

	// pt is the origin, so project (0,0) onto a-b
	t := -(ax*dx + ay*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy)
}

// DistanceToRing returns the minimum distance in meters from pt to the boundary of a closed ring
func DistanceToRing(pt Point, ring []Point) float64 {
	if len(ring) == 0 {
		return math.Inf(1)
	}
	if len(ring) == 1 {
		return Distance(pt, ring[0])
	}

	best := math.Inf(1)
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		if d := SegmentDistance(pt, ring[j], ring[i]); d < best {
			best = d
		}
		j = i
	}
	return best
}

// DistanceToPolyline returns the great-circle distance in meters from pt to the
// nearest point on an open polyline, using s2 projection.
func DistanceToPolyline(pt Point, line []Point) float64 {
	switch len(line) {
	case 0:
		return 0
	case 1:
		return Distance(pt, line[0])
	}

	poly := make(s2.Polyline, len(line))
	for i, v := range line {
		poly[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(v.Lat, v.Lon))
	}
	target := s2.PointFromLatLng(s2.LatLngFromDegrees(pt.Lat, pt.Lon))

	nearest, _ := poly.Project(target)
	return nearest.Distance(target).Radians() * EarthRadiusMeters
}

// PathLength calculates the total length of a path (sequence of points) in meters
func PathLength(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}
