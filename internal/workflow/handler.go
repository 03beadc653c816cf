package workflow

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pinn-product-builder/erp-retifica-formiguense-sub002/internal/auth"
)

// Handler handles HTTP requests for the workflow engine.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new workflow handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers workflow routes.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	wf := router.Group("/workflow")
	{
		// Board (read path)
		wf.GET("/board", h.getBoard)

		// Stage lifecycle and moves
		wf.POST("/work-items/:id/start", h.startStage)
		wf.POST("/work-items/:id/complete", h.completeStage)
		wf.GET("/work-items/:id/history", h.getHistory)
		wf.POST("/orders/:id/move", h.moveOrder)

		// Status configuration
		wf.GET("/statuses", h.listStatuses)
		wf.POST("/statuses", h.upsertStatus)
		wf.PUT("/statuses", h.upsertStatus)
		wf.POST("/statuses/seed", h.seedStatuses)
		wf.DELETE("/statuses/:key", h.deleteStatus)

		// Transition prerequisites
		wf.GET("/prerequisites", h.listPrerequisites)
		wf.POST("/prerequisites", h.upsertPrerequisite)
		wf.DELETE("/prerequisites/:id", h.deletePrerequisite)
	}
}

// getBoard handles GET /api/v1/workflow/board
func (h *Handler) getBoard(c *gin.Context) {
	orgID := auth.OrgID(c)

	filters := BoardFilters{Search: c.Query("search")}
	if components := c.Query("components"); components != "" {
		filters.Components = strings.Split(components, ",")
	}

	board, err := h.service.Board(c.Request.Context(), orgID, filters)
	if err != nil {
		h.respondError(c, err, "failed to project board")
		return
	}
	c.JSON(http.StatusOK, board)
}

// startStage handles POST /api/v1/workflow/work-items/:id/start
func (h *Handler) startStage(c *gin.Context) {
	orgID := auth.OrgID(c)
	workItemID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	item, err := h.service.StartStage(c.Request.Context(), orgID, workItemID, auth.UserID(c))
	if err != nil {
		h.respondError(c, err, "failed to start stage")
		return
	}
	c.JSON(http.StatusOK, item)
}

// completeStage handles POST /api/v1/workflow/work-items/:id/complete?autoAdvance=bool
func (h *Handler) completeStage(c *gin.Context) {
	orgID := auth.OrgID(c)
	workItemID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	autoAdvance := c.Query("autoAdvance") == "true"

	item, err := h.service.CompleteStage(c.Request.Context(), orgID, workItemID, auth.UserID(c).String(), autoAdvance)
	if err != nil {
		h.respondError(c, err, "failed to complete stage")
		return
	}
	c.JSON(http.StatusOK, item)
}

// getHistory handles GET /api/v1/workflow/work-items/:id/history
func (h *Handler) getHistory(c *gin.Context) {
	workItemID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	entries, durations, err := h.service.Timeline(c.Request.Context(), auth.OrgID(c), workItemID)
	if err != nil {
		h.respondError(c, err, "failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "stages": durations})
}

// moveOrder handles POST /api/v1/workflow/orders/:id/move?from=&to=&component=
func (h *Handler) moveOrder(c *gin.Context) {
	orgID := auth.OrgID(c)
	orderID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	from := c.Query("from")
	to := c.Query("to")
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to statuses are required"})
		return
	}

	result, err := h.service.MoveOrder(c.Request.Context(), orgID, orderID, from, to, c.Query("component"), auth.UserID(c).String())
	if err != nil {
		h.respondError(c, err, "failed to move order")
		return
	}
	c.JSON(http.StatusOK, result)
}

// =====================================================
// Configuration endpoints
// =====================================================

func (h *Handler) listStatuses(c *gin.Context) {
	statuses, err := h.service.ListStatuses(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		h.respondError(c, err, "failed to list statuses")
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *Handler) upsertStatus(c *gin.Context) {
	var def StatusDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpsertStatus(c.Request.Context(), auth.OrgID(c), def); err != nil {
		h.respondError(c, err, "failed to upsert status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// seedStatuses installs the default workflow for a freshly provisioned
// organization. A no-op when statuses already exist.
func (h *Handler) seedStatuses(c *gin.Context) {
	if err := h.service.SeedDefaultStatuses(c.Request.Context(), auth.OrgID(c)); err != nil {
		h.respondError(c, err, "failed to seed statuses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "seeded"})
}

func (h *Handler) deleteStatus(c *gin.Context) {
	if err := h.service.DeleteStatus(c.Request.Context(), auth.OrgID(c), c.Param("key")); err != nil {
		h.respondError(c, err, "failed to delete status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) listPrerequisites(c *gin.Context) {
	rules, err := h.service.ListPrerequisites(c.Request.Context(), auth.OrgID(c))
	if err != nil {
		h.respondError(c, err, "failed to list prerequisites")
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) upsertPrerequisite(c *gin.Context) {
	var rule StatusPrerequisite
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.service.UpsertPrerequisite(c.Request.Context(), auth.OrgID(c), rule)
	if err != nil {
		h.respondError(c, err, "failed to save prerequisite")
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) deletePrerequisite(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePrerequisite(c.Request.Context(), auth.OrgID(c), id); err != nil {
		h.respondError(c, err, "failed to delete prerequisite")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// =====================================================
// Helpers
// =====================================================

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the engine's error taxonomy to HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error, logMsg string) {
	var (
		notFound  *NotFoundError
		reserved  *ReservedStatusError
		inUse     *StatusInUseError
		invalid   *InvalidTransitionError
		lifecycle *StageLifecycleError
		partial   *PartialMoveFailure
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &reserved), errors.As(err, &inUse), errors.As(err, &lifecycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     err.Error(),
			"from":      invalid.From,
			"to":        invalid.To,
			"component": invalid.Component,
		})
	case errors.As(err, &partial):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"succeeded": partial.Succeeded,
			"failed":    partial.Failed,
		})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
