package handler

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler reports process and database health
type HealthHandler struct {
	db        *sqlx.DB
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *sqlx.DB) *HealthHandler {
	return &HealthHandler{db: db, startTime: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	status := HealthStatus{
		Status:    "healthy",
		Database:  "healthy",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.db.PingContext(c.Request().Context()); err != nil {
		status.Status = "unhealthy"
		status.Database = err.Error()
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return c.JSON(http.StatusOK, status)
}
