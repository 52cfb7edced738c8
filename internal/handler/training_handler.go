package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/repository"
	"github.com/jengzang/tourist-safety-backend/pkg/response"
)

// Retrainer is implemented by training.Scheduler
type Retrainer interface {
	ForceRetrain(kind models.ModelKind) models.ForceResult
	Kinds() []models.ModelKind
	Status() models.TrainingCycleState
}

// RunLister reads training run history
type RunLister interface {
	ListRuns(ctx context.Context, filter repository.TrainingRunFilter) ([]models.TrainingRun, error)
}

// SnapshotHistory lists the snapshot generations kept in memory
type SnapshotHistory interface {
	History(kind models.ModelKind) []models.SnapshotInfo
}

// TrainingHandler exposes the training scheduler
type TrainingHandler struct {
	scheduler Retrainer
	runs      RunLister
	history   SnapshotHistory
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(scheduler Retrainer, runs RunLister, history SnapshotHistory) *TrainingHandler {
	return &TrainingHandler{scheduler: scheduler, runs: runs, history: history}
}

// Retrain requests an immediate cycle for one kind or for all of them
// POST /api/v1/training/:kind/retrain
func (h *TrainingHandler) Retrain(c *gin.Context) {
	kinds, ok := h.kinds(c)
	if !ok {
		return
	}

	results := make([]models.ForceResult, 0, len(kinds))
	accepted := 0
	for _, k := range kinds {
		r := h.scheduler.ForceRetrain(k)
		if r.Accepted {
			accepted++
		}
		results = append(results, r)
	}

	if accepted == 0 {
		response.Conflict(c, "Training cycle already in progress", results)
		return
	}
	response.Accepted(c, results)
}

// Status returns the scheduler state
// GET /api/v1/training/status
func (h *TrainingHandler) Status(c *gin.Context) {
	response.Success(c, h.scheduler.Status())
}

// Snapshots lists the retained snapshot generations of a kind
// GET /api/v1/training/:kind/snapshots
func (h *TrainingHandler) Snapshots(c *gin.Context) {
	kind, err := models.ParseModelKind(c.Param("kind"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	history := h.history.History(kind)
	if history == nil {
		history = []models.SnapshotInfo{}
	}
	response.Success(c, history)
}

// ListRuns returns recent training runs
// GET /api/v1/training/runs
func (h *TrainingHandler) ListRuns(c *gin.Context) {
	filter := repository.TrainingRunFilter{Status: c.Query("status")}
	if k := c.Query("kind"); k != "" {
		kind, err := models.ParseModelKind(k)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		filter.Kind = kind
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = repository.DefaultRunLimit
	}
	// echo the page size the store will actually apply
	filter.Limit = repository.ClampRunLimit(limit)

	runs, err := h.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.TrainingRun{}
	}

	response.Success(c, gin.H{
		"runs":  runs,
		"limit": filter.Limit,
	})
}

func (h *TrainingHandler) kinds(c *gin.Context) ([]models.ModelKind, bool) {
	raw := c.Param("kind")
	if raw == "all" {
		return h.scheduler.Kinds(), true
	}
	kind, err := models.ParseModelKind(raw)
	if errors.Is(err, models.ErrUnknownModelKind) {
		response.NotFound(c, err.Error())
		return nil, false
	}
	for _, k := range h.scheduler.Kinds() {
		if k == kind {
			return []models.ModelKind{kind}, true
		}
	}
	response.NotFound(c, "model kind not scheduled: "+raw)
	return nil, false
}
