package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

// VersionReader reports the current snapshot versions
type VersionReader interface {
	Versions() map[models.ModelKind]uint64
}

// HealthHandler reports liveness and the loaded model versions
type HealthHandler struct {
	versions VersionReader
	started  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(versions VersionReader) *HealthHandler {
	return &HealthHandler{versions: versions, started: time.Now()}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"message":        "Tourist Safety API is running",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"model_versions": h.versions.Versions(),
	})
}
