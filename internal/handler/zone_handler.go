package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tourist-safety-backend/internal/service"
	"github.com/jengzang/tourist-safety-backend/pkg/response"
)

// ZoneCatalog is implemented by service.ZoneCatalog
type ZoneCatalog interface {
	Info() service.CatalogInfo
	Reload(ctx context.Context) (service.CatalogInfo, error)
}

// ZoneHandler handles HTTP requests for the zone catalog
type ZoneHandler struct {
	catalog ZoneCatalog
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(catalog ZoneCatalog) *ZoneHandler {
	return &ZoneHandler{catalog: catalog}
}

// ListZones returns the active zones and the ones rejected at the last load
// GET /api/v1/zones
func (h *ZoneHandler) ListZones(c *gin.Context) {
	response.Success(c, h.catalog.Info())
}

// Reload re-reads the zone table
// POST /api/v1/zones/reload
func (h *ZoneHandler) Reload(c *gin.Context) {
	info, err := h.catalog.Reload(c.Request.Context())
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{
		"active":    len(info.Zones),
		"rejected":  info.Rejected,
		"loaded_at": info.LoadedAt,
	})
}
