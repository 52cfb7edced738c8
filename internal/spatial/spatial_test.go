package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = []Point{
	{Lat: 0, Lon: 0},
	{Lat: 0, Lon: 1},
	{Lat: 1, Lon: 1},
	{Lat: 1, Lon: 0},
}

func TestHaversineDistance(t *testing.T) {
	// one degree of latitude
	d := HaversineDistance(0, 0, 1, 0)
	assert.InDelta(t, MetersPerDegree, d, 1)
	assert.Zero(t, HaversineDistance(26.1, 91.7, 26.1, 91.7))
}

func TestPointInPolygon(t *testing.T) {
	assert.True(t, PointInPolygon(Point{Lat: 0.5, Lon: 0.5}, square))
	assert.False(t, PointInPolygon(Point{Lat: 1.5, Lon: 0.5}, square))
	assert.False(t, PointInPolygon(Point{Lat: 0.5, Lon: -0.1}, square))
	assert.False(t, PointInPolygon(Point{Lat: 0.5, Lon: 0.5}, square[:2]))
}

func TestSelfIntersects(t *testing.T) {
	assert.False(t, SelfIntersects(square))

	closed := append(append([]Point{}, square...), square[0])
	assert.False(t, SelfIntersects(closed))

	bowtie := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 1, Lon: 1},
		{Lat: 1, Lon: 0},
		{Lat: 0, Lon: 1},
	}
	assert.True(t, SelfIntersects(bowtie))
}

func TestSegmentDistance(t *testing.T) {
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 0, Lon: 0.01}

	// 0.001 deg north of the segment midpoint
	d := SegmentDistance(Point{Lat: 0.001, Lon: 0.005}, a, b)
	assert.InDelta(t, 0.001*MetersPerDegree, d, 0.5)

	// beyond the end clamps to the endpoint
	d = SegmentDistance(Point{Lat: 0, Lon: 0.02}, a, b)
	assert.InDelta(t, 0.01*MetersPerDegree, d, 1)

	assert.InDelta(t, 0, SegmentDistance(a, a, a), 1e-9)
}

func TestDistanceToRing(t *testing.T) {
	d := DistanceToRing(Point{Lat: 0.5, Lon: 1.001}, square)
	assert.InDelta(t, 0.001*MetersPerDegree*math.Cos(0.5*math.Pi/180), d, 1)
	assert.True(t, math.IsInf(DistanceToRing(Point{}, nil), 1))
}

func TestDistanceToPolyline(t *testing.T) {
	route := []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}

	d := DistanceToPolyline(Point{Lat: 0.001, Lon: 0.005}, route)
	assert.InDelta(t, 0.001*MetersPerDegree, d, 1)

	assert.Zero(t, DistanceToPolyline(Point{Lat: 1, Lon: 1}, nil))
	assert.InDelta(t, MetersPerDegree, DistanceToPolyline(Point{Lat: 1, Lon: 0}, route[:1]), 1)
}

func TestBoundsExpand(t *testing.T) {
	b := BoundingBox(square).Expand(1000)
	assert.Less(t, b.MinLat, 0.0)
	assert.Greater(t, b.MaxLon, 1.0)
	assert.True(t, b.Contains(Point{Lat: -0.005, Lon: 0.5}))
	assert.False(t, b.Contains(Point{Lat: -0.02, Lon: 0.5}))
}

func TestGeohash(t *testing.T) {
	h := EncodeGeohash(57.64911, 10.40744, 11)
	assert.Equal(t, "u4pruydqqvj", h)

	b := GeohashBounds(h)
	assert.True(t, b.Contains(Point{Lat: 57.64911, Lon: 10.40744}))

	cells := GeohashNeighbors(57.64911, 10.40744, 6)
	require.Len(t, cells, 9)
	assert.Equal(t, EncodeGeohash(57.64911, 10.40744, 6), cells[0])

	assert.Equal(t, 6, GeohashPrecisionCovering(200))
	assert.Equal(t, 1, GeohashPrecisionCovering(1e9))
}

func TestGeohashCover(t *testing.T) {
	cell := GeohashBounds("u4pru")
	box := Bounds{MinLat: cell.MinLat + 1e-6, MinLon: cell.MinLon + 1e-6, MaxLat: cell.MaxLat - 1e-6, MaxLon: cell.MaxLon - 1e-6}
	cells, ok := GeohashCover(box, 5, 0)
	require.True(t, ok)
	assert.Equal(t, []string{"u4pru"}, cells)

	wider, ok := GeohashCover(box.Expand(100), 5, 64)
	require.True(t, ok)
	assert.Contains(t, wider, "u4pru")
	assert.Greater(t, len(wider), 1)

	_, ok = GeohashCover(Bounds{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}, 5, 64)
	assert.False(t, ok)
}
