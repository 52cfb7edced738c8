package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/pkg/response"
)

// Assessor is implemented by service.AssessmentService
type Assessor interface {
	RecordAndAssess(ctx context.Context, sample models.LocationSample) (*models.AssessmentResult, error)
	Assess(ctx context.Context, sample models.LocationSample) (*models.AssessmentResult, error)
	Latest(ctx context.Context, touristID string) (*models.AssessmentResult, error)
}

// AssessmentHandler handles location ingestion and assessment requests
type AssessmentHandler struct {
	service Assessor
	now     func() time.Time
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(service Assessor) *AssessmentHandler {
	return &AssessmentHandler{service: service, now: time.Now}
}

// RecordLocation stores a location update and returns its assessment
// POST /api/v1/locations
func (h *AssessmentHandler) RecordLocation(c *gin.Context) {
	h.handle(c, h.service.RecordAndAssess)
}

// Assess scores a location update without storing it
// POST /api/v1/assessments
func (h *AssessmentHandler) Assess(c *gin.Context) {
	h.handle(c, h.service.Assess)
}

func (h *AssessmentHandler) handle(c *gin.Context, fn func(context.Context, models.LocationSample) (*models.AssessmentResult, error)) {
	var in models.LocationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := fn(c.Request.Context(), in.Sample(h.now()))
	switch {
	case errors.Is(err, models.ErrInvalidCoordinates), errors.Is(err, models.ErrMissingTouristID):
		response.BadRequest(c, err.Error())
		return
	case err != nil:
		_ = c.Error(err)
		response.InternalError(c, "Assessment failed")
		return
	}

	response.Success(c, result)
}

// LatestAssessment returns the newest stored assessment of a tourist
// GET /api/v1/tourists/:id/assessments/latest
func (h *AssessmentHandler) LatestAssessment(c *gin.Context) {
	result, err := h.service.Latest(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "No assessment for tourist")
		return
	}
	if err != nil {
		_ = c.Error(err)
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, result)
}
