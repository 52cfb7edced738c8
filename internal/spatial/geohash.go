package spatial

import (
	"math"
	"sort"
)

// Base32 encoding for geohash
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// MaxGeohashPrecision is the longest geohash produced by EncodeGeohash
const MaxGeohashPrecision = 12

// approximate cell edge at the equator, indexed by precision
var geohashCellSizes = [...]float64{
	0,
	5000000, // ±2500 km
	625000,  // ±312.5 km
	123000,  // ±61.5 km
	19500,   // ±9.75 km
	3900,    // ±1.95 km
	610,     // ±305 m
	120,     // ±60 m
	19,      // ±9.5 m
	3.7,     // ±1.85 m
	0.6,     // ±30 cm
	0.12,    // ±6 cm
	0.019,   // ±0.95 cm
}

// EncodeGeohash encodes latitude and longitude into a geohash string
// precision: number of characters in the geohash (1-12)
func EncodeGeohash(lat, lon float64, precision int) string {
	precision = clampPrecision(precision)

	latRange := [2]float64{-90.0, 90.0}
	lonRange := [2]float64{-180.0, 180.0}

	hash := make([]byte, 0, precision)
	bits, ch := 0, 0
	evenBit := true

	for len(hash) < precision {
		if evenBit {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon > mid {
				ch |= 1 << (4 - bits)
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		evenBit = !evenBit

		bits++
		if bits == 5 {
			hash = append(hash, base32[ch])
			bits, ch = 0, 0
		}
	}

	return string(hash)
}

// GeohashBounds returns the bounding box of a geohash cell
func GeohashBounds(hash string) Bounds {
	latRange := [2]float64{-90.0, 90.0}
	lonRange := [2]float64{-180.0, 180.0}

	isLon := true
	for i := 0; i < len(hash); i++ {
		idx := indexOfBase32(hash[i])
		if idx == -1 {
			continue
		}

		for mask := 16; mask > 0; mask >>= 1 {
			r := &latRange
			if isLon {
				r = &lonRange
			}
			mid := (r[0] + r[1]) / 2
			if idx&mask != 0 {
				r[0] = mid
			} else {
				r[1] = mid
			}
			isLon = !isLon
		}
	}

	return Bounds{MinLat: latRange[0], MinLon: lonRange[0], MaxLat: latRange[1], MaxLon: lonRange[1]}
}

// GeohashCellSize returns the approximate cell size in meters for a given precision
func GeohashCellSize(precision int) float64 {
	if precision < 1 || precision > MaxGeohashPrecision {
		return 0
	}
	return geohashCellSizes[precision]
}

// GeohashPrecisionCovering returns the finest precision whose cells are still at
// least radius meters wide, so a cell plus its neighbours covers the radius.
func GeohashPrecisionCovering(radiusMeters float64) int {
	best := 1
	for p := 1; p <= MaxGeohashPrecision; p++ {
		if geohashCellSizes[p] >= radiusMeters {
			best = p
		}
	}
	return best
}

// GeohashNeighbors returns the cell containing (lat, lon) followed by its 8 neighbours.
// Duplicates at the poles are removed.
func GeohashNeighbors(lat, lon float64, precision int) []string {
	center := EncodeGeohash(lat, lon, precision)
	b := GeohashBounds(center)
	cLat := (b.MinLat + b.MaxLat) / 2
	cLon := (b.MinLon + b.MaxLon) / 2
	latDelta := b.MaxLat - b.MinLat
	lonDelta := b.MaxLon - b.MinLon

	seen := map[string]bool{center: true}
	cells := []string{center}
	for dLat := -1; dLat <= 1; dLat++ {
		for dLon := -1; dLon <= 1; dLon++ {
			if dLat == 0 && dLon == 0 {
				continue
			}
			nLat := math.Max(-90, math.Min(90, cLat+float64(dLat)*latDelta))
			nLon := wrapLon(cLon + float64(dLon)*lonDelta)
			h := EncodeGeohash(nLat, nLon, precision)
			if !seen[h] {
				seen[h] = true
				cells = append(cells, h)
			}
		}
	}
	return cells
}

// GeohashCover returns the sorted set of cells at precision that intersect the box.
// When limit > 0 and the box would need more cells than that, it returns false.
func GeohashCover(b Bounds, precision, limit int) ([]string, bool) {
	precision = clampPrecision(precision)
	seed := GeohashBounds(EncodeGeohash(b.MinLat, b.MinLon, precision))
	latStep := seed.MaxLat - seed.MinLat
	lonStep := seed.MaxLon - seed.MinLon

	if limit > 0 {
		rows := math.Ceil((b.MaxLat-seed.MinLat)/latStep) + 1
		cols := math.Ceil((b.MaxLon-seed.MinLon)/lonStep) + 1
		if rows*cols > float64(limit) {
			return nil, false
		}
	}

	seen := make(map[string]bool)
	for lat := seed.MinLat + latStep/2; lat-latStep/2 < b.MaxLat; lat += latStep {
		for lon := seed.MinLon + lonStep/2; lon-lonStep/2 < b.MaxLon; lon += lonStep {
			seen[EncodeGeohash(math.Min(lat, 90), math.Min(lon, 180), precision)] = true
		}
	}

	cells := make([]string, 0, len(seen))
	for h := range seen {
		cells = append(cells, h)
	}
	sort.Strings(cells)
	return cells, true
}

func clampPrecision(p int) int {
	if p < 1 {
		return 1
	}
	if p > MaxGeohashPrecision {
		return MaxGeohashPrecision
	}
	return p
}

func wrapLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	if lon < -180 {
		return lon + 360
	}
	return lon
}

// indexOfBase32 finds the index of a character in the base32 alphabet
func indexOfBase32(ch byte) int {
	for i := 0; i < len(base32); i++ {
		if base32[i] == ch {
			return i
		}
	}
	return -1
}
