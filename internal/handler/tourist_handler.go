package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/spatial"
	"github.com/jengzang/tourist-safety-backend/pkg/response"
)

// AlertLister reads delivered alerts
type AlertLister interface {
	ListAlerts(ctx context.Context, touristID string, limit int) ([]models.AlertRequest, error)
}

// RouteWriter stores planned routes
type RouteWriter interface {
	SaveRoute(ctx context.Context, route *models.PlannedRoute) error
}

// TouristHandler serves per-tourist alert history and planned routes
type TouristHandler struct {
	alerts AlertLister
	routes RouteWriter
}

// NewTouristHandler creates a new tourist handler
func NewTouristHandler(alerts AlertLister, routes RouteWriter) *TouristHandler {
	return &TouristHandler{alerts: alerts, routes: routes}
}

// ListAlerts returns recent alerts for a tourist
// GET /api/v1/tourists/:id/alerts
func (h *TouristHandler) ListAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	alerts, err := h.alerts.ListAlerts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	if alerts == nil {
		alerts = []models.AlertRequest{}
	}

	response.Success(c, gin.H{
		"alerts": alerts,
		"limit":  limit,
	})
}

// SaveRouteRequest is the request body for a planned route
type SaveRouteRequest struct {
	Name      string          `json:"name"`
	Waypoints []spatial.Point `json:"waypoints" binding:"required,min=2"`
}

// SaveRoute replaces the planned route of a tourist
// PUT /api/v1/tourists/:id/route
func (h *TouristHandler) SaveRoute(c *gin.Context) {
	var req SaveRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	for _, p := range req.Waypoints {
		if !p.Valid() {
			response.BadRequest(c, models.ErrInvalidCoordinates.Error())
			return
		}
	}

	route := &models.PlannedRoute{
		TouristID: c.Param("id"),
		Name:      req.Name,
		Waypoints: req.Waypoints,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.routes.SaveRoute(c.Request.Context(), route); err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, route)
}
