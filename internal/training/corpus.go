package training

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/analysis/features"
	"github.com/jengzang/tourist-safety-backend/internal/geofence"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

// HistorySource returns every tourist's samples captured at or after since
type HistorySource interface {
	SamplesSince(ctx context.Context, since time.Time) ([]models.LocationSample, error)
}

// RouteSource returns planned routes keyed by tourist
type RouteSource interface {
	PlannedRoutes(ctx context.Context) (map[string]models.PlannedRoute, error)
}

// ZoneProvider returns the evaluator currently in use
type ZoneProvider interface {
	Evaluator() *geofence.Evaluator
}

// CorpusBuilder replays location history through the feature extractor,
// producing one vector per sample with the same window the live path uses.
type CorpusBuilder struct {
	history   HistorySource
	zones     ZoneProvider
	routes    RouteSource
	extractor *features.Extractor
	window    models.Window
	logger    *zap.Logger
}

// NewCorpusBuilder creates a corpus builder. routes may be nil.
func NewCorpusBuilder(history HistorySource, zones ZoneProvider, routes RouteSource, extractor *features.Extractor, window models.Window, logger *zap.Logger) *CorpusBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorpusBuilder{
		history:   history,
		zones:     zones,
		routes:    routes,
		extractor: extractor,
		window:    window,
		logger:    logger.Named("corpus"),
	}
}

// Corpus implements CorpusSource. Vectors flagged LowConfidence are left out.
func (b *CorpusBuilder) Corpus(ctx context.Context, since time.Time) ([]models.FeatureVector, error) {
	samples, err := b.history.SamplesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	routes := map[string]models.PlannedRoute{}
	if b.routes != nil {
		if r, err := b.routes.PlannedRoutes(ctx); err != nil {
			b.logger.Warn("Planned routes unavailable, route deviation set to 0", zap.Error(err))
		} else {
			routes = r
		}
	}

	var eval *geofence.Evaluator
	if b.zones != nil {
		eval = b.zones.Evaluator()
	}

	density := newDensityGrid(samples, features.DensityRadiusMeters)
	byTourist := groupByTourist(samples)

	out := make([]models.FeatureVector, 0, len(samples))
	skipped := 0
	for _, tid := range sortedKeys(byTourist) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		track := byTourist[tid]
		route := routes[tid].Waypoints

		for i := range track {
			win := b.windowEnding(track, i)
			last := track[i]

			var zone models.ZoneMatch
			if eval != nil {
				zone = eval.Evaluate(last.Point())
			}
			nearby := density.count(last, features.DensityWindow)

			fv := b.extractor.Extract(tid, win, features.Context{
				Zone:        zone,
				Route:       route,
				NearbyCount: &nearby,
			})
			if fv.LowConfidence {
				skipped++
				continue
			}
			out = append(out, fv)
		}
	}

	b.logger.Debug("Corpus built",
		zap.Int("samples", len(samples)),
		zap.Int("tourists", len(byTourist)),
		zap.Int("vectors", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

// windowEnding returns the window of track that ends at index i (track sorted oldest first)
func (b *CorpusBuilder) windowEnding(track []models.LocationSample, i int) []models.LocationSample {
	start := 0
	if b.window.MaxSamples > 0 && i+1 > b.window.MaxSamples {
		start = i + 1 - b.window.MaxSamples
	}
	if b.window.MaxAge > 0 {
		oldest := track[i].CapturedAt.Add(-b.window.MaxAge)
		for start < i && track[start].CapturedAt.Before(oldest) {
			start++
		}
	}
	return track[start : i+1]
}

func groupByTourist(samples []models.LocationSample) map[string][]models.LocationSample {
	out := make(map[string][]models.LocationSample)
	for _, s := range samples {
		out[s.TouristID] = append(out[s.TouristID], s)
	}
	for _, track := range out {
		sort.SliceStable(track, func(i, j int) bool {
			return track[i].CapturedAt.Before(track[j].CapturedAt)
		})
	}
	return out
}

func sortedKeys(m map[string][]models.LocationSample) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// densityGrid buckets samples by geohash so nearby counts only scan adjacent cells
type densityGrid struct {
	precision int
	radius    float64
	cells     map[string][]models.LocationSample
}

func newDensityGrid(samples []models.LocationSample, radius float64) *densityGrid {
	g := &densityGrid{
		precision: spatial.GeohashPrecisionCovering(radius),
		radius:    radius,
		cells:     make(map[string][]models.LocationSample),
	}
	for _, s := range samples {
		h := spatial.EncodeGeohash(s.Latitude, s.Longitude, g.precision)
		g.cells[h] = append(g.cells[h], s)
	}
	return g
}

// count returns how many samples of other tourists lie within radius of s
// and were captured in [s.CapturedAt-window, s.CapturedAt]
func (g *densityGrid) count(s models.LocationSample, window time.Duration) int {
	since := s.CapturedAt.Add(-window)
	n := 0
	for _, h := range spatial.GeohashNeighbors(s.Latitude, s.Longitude, g.precision) {
		for _, o := range g.cells[h] {
			if o.TouristID == s.TouristID {
				continue
			}
			if o.CapturedAt.Before(since) || o.CapturedAt.After(s.CapturedAt) {
				continue
			}
			if spatial.Distance(s.Point(), o.Point()) <= g.radius {
				n++
			}
		}
	}
	return n
}
