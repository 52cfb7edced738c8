package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/geofence"
	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
)

type memZones struct {
	zones []models.Zone
	err   error
}

func (m *memZones) GetZones(context.Context) ([]models.Zone, error) {
	return m.zones, m.err
}

func (m *memZones) UpsertZones(_ context.Context, zones []models.Zone) error {
	if m.err != nil {
		return m.err
	}
	m.zones = append(m.zones, zones...)
	return nil
}

func TestZoneCatalogStartsEmpty(t *testing.T) {
	c := NewZoneCatalog(&memZones{}, nil, nil)
	require.NotNil(t, c.Evaluator())
	assert.False(t, c.Evaluator().Evaluate(spatial.Point{Lat: 48.05, Lon: 11.05}).Found())
	assert.Empty(t, c.Info().Zones)
}

func TestZoneCatalogReload(t *testing.T) {
	broken := models.Zone{ID: "broken", Kind: models.ZoneKindRestricted, RiskLevel: 3,
		Polygon: []spatial.Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}}
	src := &memZones{zones: append(append([]models.Zone(nil), testZones...), broken)}

	c := NewZoneCatalog(src, func() geofence.ZoneIndex { return geofence.NewGeohashIndex(5) }, zap.NewNop())
	info, err := c.Reload(context.Background())
	require.NoError(t, err)

	assert.Len(t, info.Zones, 2)
	require.Len(t, info.Rejected, 1)
	assert.Equal(t, "broken", info.Rejected[0].ZoneID)
	assert.False(t, info.LoadedAt.IsZero())

	match := c.Evaluator().Evaluate(spatial.Point{Lat: 48.055, Lon: 11.055})
	require.True(t, match.Found())
	assert.Equal(t, "cliff", match.Zone.ID)
}

func TestZoneCatalogKeepsEvaluatorOnError(t *testing.T) {
	src := &memZones{zones: testZones}
	c := NewZoneCatalog(src, nil, zap.NewNop())
	_, err := c.Reload(context.Background())
	require.NoError(t, err)
	before := c.Evaluator()

	src.err = errors.New("no such table: zones")
	info, err := c.Reload(context.Background())
	assert.Error(t, err)
	assert.Same(t, before, c.Evaluator())
	assert.Len(t, info.Zones, 2)
}

const zonesYAML = `
zones:
  - id: harbour
    name: Harbour walk
    kind: safe
    risk_level: 1
    polygon:
      - {lat: 43.0, lon: 5.0}
      - {lat: 43.0, lon: 5.1}
      - {lat: 43.1, lon: 5.1}
      - {lat: 43.1, lon: 5.0}
  - id: quarry
    name: Old quarry
    kind: restricted
    risk_level: 4
    buffer_meters: 50
    polygon:
      - {lat: 43.05, lon: 5.05}
      - {lat: 43.05, lon: 5.06}
      - {lat: 43.06, lon: 5.06}
  - id: quarry
    kind: restricted
    risk_level: 2
    polygon:
      - {lat: 44, lon: 5}
      - {lat: 44, lon: 6}
      - {lat: 45, lon: 6}
  - id: volcano
    kind: lava
    risk_level: 5
    polygon:
      - {lat: 1, lon: 1}
      - {lat: 1, lon: 2}
      - {lat: 2, lon: 2}
`

func TestParseZones(t *testing.T) {
	zones, rejected, err := ParseZones([]byte(zonesYAML))
	require.NoError(t, err)

	require.Len(t, zones, 2)
	assert.Equal(t, "harbour", zones[0].ID)
	assert.Equal(t, models.ZoneKindRestricted, zones[1].Kind)
	assert.Equal(t, 50.0, zones[1].BufferMeters)
	assert.Len(t, zones[1].Polygon, 3)

	require.Len(t, rejected, 2)
	assert.Equal(t, "quarry", rejected[0].ZoneID)
	assert.Equal(t, "duplicate zone id", rejected[0].Reason)
	assert.Equal(t, "volcano", rejected[1].ZoneID)
	assert.Contains(t, rejected[1].Reason, "unknown kind")

	_, _, err = ParseZones([]byte("zones: [unterminated"))
	assert.Error(t, err)
}

func TestImportZonesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(zonesYAML), 0o644))

	store := &memZones{}
	n, rejected, err := ImportZonesFile(context.Background(), path, store, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, rejected, 2)
	assert.Len(t, store.zones, 2)

	_, _, err = ImportZonesFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), store, zap.NewNop())
	assert.Error(t, err)

	store.err = errors.New("disk I/O error")
	_, _, err = ImportZonesFile(context.Background(), path, store, zap.NewNop())
	assert.Error(t, err)
}
