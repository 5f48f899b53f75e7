// Package handler serves the merge run API consumed by the polling admin client.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"variant-merger/internal/models"
	"variant-merger/internal/service"
	"variant-merger/internal/tracing"
)

// RunController is the run lifecycle the API exposes
type RunController interface {
	Start(ctx context.Context, itemIDs []string) (*models.StartResult, error)
	Stop(ctx context.Context) error
	Status(ctx context.Context) (*models.StatusResponse, error)
	ResetStats(ctx context.Context) error
}

// Cleaner performs operator-triggered queue cleanup
type Cleaner interface {
	Cleanup(ctx context.Context, cleanupType models.CleanupType) (int64, error)
}

// StartRequest selects items to merge; an empty list sweeps the catalog
type StartRequest struct {
	ItemIDs []string `json:"item_ids" validate:"omitempty,dive,required"`
}

// CleanupRequest selects which queue jobs to remove
type CleanupRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=all completed failed stuck"`
}

// CleanupResponse reports how many jobs were removed or reclaimed
type CleanupResponse struct {
	Type    models.CleanupType `json:"type"`
	Cleaned int64              `json:"cleaned"`
}

// MessageResponse acknowledges an action
type MessageResponse struct {
	Message string `json:"message"`
}

// RunHandler handles HTTP requests for the merge run
type RunHandler struct {
	controller RunController
	cleaner    Cleaner
	logger     *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(controller RunController, cleaner Cleaner, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{controller: controller, cleaner: cleaner, logger: logger}
}

// Register registers the run routes
func (h *RunHandler) Register(g *echo.Group) {
	g.POST("/run/start", h.Start)
	g.POST("/run/stop", h.Stop)
	g.GET("/run/status", h.Status)
	g.POST("/run/stats/reset", h.ResetStats)
	g.POST("/queue/cleanup", h.Cleanup)
}

// Start handles POST /run/start
func (h *RunHandler) Start(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RunHandler.Start")
	defer span.End()

	req, err := bindRequest[StartRequest](c)
	if err != nil {
		return err
	}

	result, err := h.controller.Start(ctx, req.ItemIDs)
	if err != nil {
		tracing.Fail(span, err)
		if errors.Is(err, service.ErrNothingToQueue) {
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, "Failed to queue products")
		}
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Stop handles POST /run/stop
func (h *RunHandler) Stop(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RunHandler.Stop")
	defer span.End()

	if err := h.controller.Stop(ctx); err != nil {
		tracing.Fail(span, err)
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Processing stopped"})
}

// Status handles GET /run/status
func (h *RunHandler) Status(c echo.Context) error {
	status, err := h.controller.Status(c.Request().Context())
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, status)
}

// ResetStats handles POST /run/stats/reset
func (h *RunHandler) ResetStats(c echo.Context) error {
	if err := h.controller.ResetStats(c.Request().Context()); err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Statistics reset"})
}

// Cleanup handles POST /queue/cleanup
func (h *RunHandler) Cleanup(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "RunHandler.Cleanup")
	defer span.End()

	req, err := bindRequest[CleanupRequest](c)
	if err != nil {
		return err
	}
	cleanupType, err := service.ParseCleanupType(req.Type)
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	n, err := h.cleaner.Cleanup(ctx, cleanupType)
	if err != nil {
		tracing.Fail(span, err)
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	h.logger.Info("queue cleanup requested", zap.String("type", string(cleanupType)), zap.Int64("cleaned", n))
	return c.JSON(http.StatusOK, CleanupResponse{Type: cleanupType, Cleaned: n})
}
