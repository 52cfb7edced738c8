package service

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jengzang/tourist-safety-backend/internal/geofence"
	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// ZoneSource reads the zone table
type ZoneSource interface {
	GetZones(ctx context.Context) ([]models.Zone, error)
}

// ZoneWriter stores imported zones
type ZoneWriter interface {
	UpsertZones(ctx context.Context, zones []models.Zone) error
}

// CatalogInfo summarizes the loaded zone set
type CatalogInfo struct {
	Zones    []models.Zone         `json:"zones"`
	Rejected []models.RejectedZone `json:"rejected"`
	LoadedAt time.Time             `json:"loaded_at"`
}

type catalogState struct {
	eval     *geofence.Evaluator
	rejected []models.RejectedZone
	loadedAt time.Time
}

// ZoneCatalog owns the active zone evaluator. Reload builds a new evaluator and
// swaps it in; assessments keep whichever evaluator they fetched.
type ZoneCatalog struct {
	source   ZoneSource
	newIndex func() geofence.ZoneIndex
	logger   *zap.Logger
	state    atomic.Pointer[catalogState]
}

// NewZoneCatalog creates an empty catalog. newIndex may be nil for the linear index.
func NewZoneCatalog(source ZoneSource, newIndex func() geofence.ZoneIndex, logger *zap.Logger) *ZoneCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if newIndex == nil {
		newIndex = func() geofence.ZoneIndex { return geofence.NewLinearIndex() }
	}
	c := &ZoneCatalog{source: source, newIndex: newIndex, logger: logger.Named("zones")}
	empty, _ := geofence.NewEvaluator(nil)
	c.state.Store(&catalogState{eval: empty})
	return c
}

// Reload reads all zones and swaps in a new evaluator. Invalid zones are
// excluded and logged; on a read error the current evaluator stays in place.
func (c *ZoneCatalog) Reload(ctx context.Context) (CatalogInfo, error) {
	zones, err := c.source.GetZones(ctx)
	if err != nil {
		return c.Info(), fmt.Errorf("failed to load zones: %w", err)
	}

	eval, rejected := geofence.NewEvaluator(zones, geofence.WithIndex(c.newIndex()))
	for _, r := range rejected {
		c.logger.Warn("Zone rejected", zap.String("zone_id", r.ZoneID), zap.String("reason", r.Reason))
	}
	c.state.Store(&catalogState{eval: eval, rejected: rejected, loadedAt: time.Now().UTC()})

	c.logger.Info("Zones loaded", zap.Int("active", eval.Len()), zap.Int("rejected", len(rejected)))
	return c.Info(), nil
}

// Evaluator returns the active evaluator; never nil
func (c *ZoneCatalog) Evaluator() *geofence.Evaluator {
	return c.state.Load().eval
}

// Info returns the active zones and the ones rejected at the last load
func (c *ZoneCatalog) Info() CatalogInfo {
	st := c.state.Load()
	return CatalogInfo{
		Zones:    st.eval.Zones(),
		Rejected: append([]models.RejectedZone(nil), st.rejected...),
		LoadedAt: st.loadedAt,
	}
}

// zoneFile is the YAML layout accepted by ImportZonesFile
type zoneFile struct {
	Zones []models.Zone `yaml:"zones"`
}

// ParseZones decodes a YAML zone document and validates every zone.
// Invalid zones are returned separately and left out of the first result.
func ParseZones(data []byte) ([]models.Zone, []models.RejectedZone, error) {
	var f zoneFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse zones: %w", err)
	}

	var (
		valid    []models.Zone
		rejected []models.RejectedZone
		seen     = make(map[string]bool, len(f.Zones))
	)
	for _, z := range f.Zones {
		if err := geofence.Validate(z); err != nil {
			rejected = append(rejected, models.RejectedZone{ZoneID: z.ID, Reason: err.Error()})
			continue
		}
		if seen[z.ID] {
			rejected = append(rejected, models.RejectedZone{ZoneID: z.ID, Reason: "duplicate zone id"})
			continue
		}
		seen[z.ID] = true
		valid = append(valid, z)
	}
	return valid, rejected, nil
}

// ImportZonesFile loads a YAML zone file into the store
func ImportZonesFile(ctx context.Context, path string, store ZoneWriter, logger *zap.Logger) (int, []models.RejectedZone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	zones, rejected, err := ParseZones(data)
	if err != nil {
		return 0, nil, err
	}
	for _, r := range rejected {
		logger.Warn("Skipping invalid zone", zap.String("zone_id", r.ZoneID), zap.String("reason", r.Reason))
	}
	if len(zones) == 0 {
		return 0, rejected, nil
	}
	if err := store.UpsertZones(ctx, zones); err != nil {
		return 0, rejected, err
	}
	return len(zones), rejected, nil
}
