package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RouterConfig wires the API routes
type RouterConfig struct {
	Run          *RunHandler
	Items        *ItemHandler
	Settings     *SettingsHandler
	Health       *HealthHandler
	Metrics      http.Handler
	AllowOrigins []string
	Logger       *zap.Logger
}

// NewRouter builds the echo server with middleware and all routes under /api
func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(RequestContext())
	e.Use(Logger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	if cfg.Health != nil {
		e.GET("/health", cfg.Health.Health)
	}
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	api := e.Group("/api")
	if cfg.Run != nil {
		cfg.Run.Register(api)
	}
	if cfg.Items != nil {
		cfg.Items.Register(api)
	}
	if cfg.Settings != nil {
		cfg.Settings.Register(api)
	}

	return e
}
