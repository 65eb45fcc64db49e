package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/service"
)

type Handler struct {
	Store          service.Store
	Orchestrator   *service.Orchestrator
	Validator      *validator.Validate
	Logger         zerolog.Logger
	Location       *time.Location
	RequestTimeout time.Duration
}

type jobParams struct {
	Kind string `uri:"kind" validate:"required,oneof=inspection work_order"`
	ID   string `uri:"id" validate:"required"`
}

type OptimizeRouteRequest struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	ReturnToStart   bool   `json:"return_to_start"`
	CompareBaseline bool   `json:"compare_baseline"`
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Auto-assign unassigned jobs
// @Description Scores every eligible technician for each unassigned job of the company and assigns the best one
// @Tags assignment
// @Produce json
// @Param company_id path string true "Company ID"
// @Success 200 {object} service.BatchResult
// @Router /api/companies/{company_id}/auto-assign [post]
func (h *Handler) AutoAssign(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.Orchestrator.AutoAssign(ctx, c.Param("company_id"))
	if err != nil {
		h.Logger.Error().Err(err).Msg("auto-assign failed")
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Assign one job
// @Tags assignment
// @Produce json
// @Param kind path string true "inspection or work_order"
// @Param id path string true "Job ID"
// @Success 200 {object} models.AssignmentDecision
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/jobs/{kind}/{id}/assign [post]
func (h *Handler) AssignJob(c *gin.Context) {
	params, ok := h.bindJob(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	decision, err := h.Orchestrator.AssignJob(ctx, params.ID, params.Kind)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// @Summary Score technicians for a job without assigning
// @Tags assignment
// @Produce json
// @Param kind path string true "inspection or work_order"
// @Param id path string true "Job ID"
// @Success 200 {array} service.Candidate
// @Router /api/jobs/{kind}/{id}/score [post]
func (h *Handler) ScoreJob(c *gin.Context) {
	params, ok := h.bindJob(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	ranked, err := h.Orchestrator.ScoreJob(ctx, params.ID, params.Kind)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": ranked})
}

// @Summary Optimize a technician's route for a day
// @Tags routes
// @Accept json
// @Produce json
// @Param id path string true "Technician ID"
// @Param body body OptimizeRouteRequest true "Route options"
// @Success 200 {object} service.DayPlan
// @Router /api/technicians/{id}/routes/optimize [post]
func (h *Handler) OptimizeTechnicianRoute(c *gin.Context) {
	date, opts, ok := h.bindRoute(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	plan, err := h.Orchestrator.OptimizeTechnicianDay(ctx, c.Param("id"), date, opts)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// @Summary Optimize routes for every technician with jobs on a day
// @Tags routes
// @Accept json
// @Produce json
// @Param company_id path string true "Company ID"
// @Param body body OptimizeRouteRequest true "Route options"
// @Success 200 {object} service.BatchResult
// @Router /api/companies/{company_id}/routes/optimize [post]
func (h *Handler) OptimizeCompanyRoutes(c *gin.Context) {
	date, opts, ok := h.bindRoute(c)
	if !ok {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.Orchestrator.OptimizeAllForDate(ctx, c.Param("company_id"), date, opts)
	if err != nil {
		h.Logger.Error().Err(err).Msg("route batch failed")
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) bindJob(c *gin.Context) (jobParams, bool) {
	var params jobParams
	if err := c.ShouldBindUri(&params); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid path", err.Error())
		return params, false
	}
	if err := h.Validator.Struct(params); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return params, false
	}
	return params, true
}

func (h *Handler) bindRoute(c *gin.Context) (time.Time, service.RouteOptions, bool) {
	var req OptimizeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return time.Time{}, service.RouteOptions{}, false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return time.Time{}, service.RouteOptions{}, false
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, loc)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date", err.Error())
		return time.Time{}, service.RouteOptions{}, false
	}
	return date, service.RouteOptions{ReturnToStart: req.ReturnToStart, CompareBaseline: req.CompareBaseline}, true
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.RequestTimeout)
}

func writeServiceError(c *gin.Context, err error) {
	var invalid *models.InvalidInputError
	switch {
	case errors.Is(err, service.ErrNoCandidate):
		writeError(c, http.StatusConflict, "NO_CANDIDATE", "No eligible technician", err.Error())
	case errors.As(err, &invalid):
		writeError(c, http.StatusBadRequest, "INVALID_INPUT", "Invalid job or technician data", invalid.Fields)
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Not found", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Request failed", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
