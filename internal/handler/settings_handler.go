package handler

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"variant-merger/internal/models"
	"variant-merger/internal/oracle"
	"variant-merger/internal/repository"
)

const maskPrefix = "****"

// SettingsResponse carries the operator settings, with API keys masked, and the
// providers that can be selected
type SettingsResponse struct {
	Settings  models.Settings `json:"settings"`
	Providers []string        `json:"providers"`
}

// SettingsHandler reads and updates operator settings
type SettingsHandler struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings repository.SettingsRepository, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{settings: settings, logger: logger}
}

// Register registers the settings routes
func (h *SettingsHandler) Register(g *echo.Group) {
	g.GET("/settings", h.Get)
	g.PUT("/settings", h.Update)
}

// Get handles GET /settings
func (h *SettingsHandler) Get(c echo.Context) error {
	settings, err := h.settings.GetSettings(c.Request().Context())
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, SettingsResponse{Settings: masked(settings), Providers: oracle.Providers()})
}

// Update handles PUT /settings. A masked API key leaves the stored key unchanged.
// Threshold changes apply from the next tick; provider changes apply on restart.
func (h *SettingsHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := bindRequest[models.Settings](c)
	if err != nil {
		return err
	}

	current, err := h.settings.GetSettings(ctx)
	if err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}
	for name, creds := range req.Providers {
		if strings.HasPrefix(creds.APIKey, maskPrefix) {
			creds.APIKey = current.Providers[name].APIKey
			req.Providers[name] = creds
		}
	}

	if err := h.settings.SaveSettings(ctx, req); err != nil {
		return httperror.WrapError(http.StatusInternalServerError, err)
	}

	h.logger.Info("settings updated",
		zap.Float64("title_similarity", req.TitleSimilarity),
		zap.String("provider", req.Provider))
	return c.JSON(http.StatusOK, SettingsResponse{Settings: masked(req), Providers: oracle.Providers()})
}

// masked hides all but the last four characters of every API key
func masked(settings models.Settings) models.Settings {
	if len(settings.Providers) == 0 {
		return settings
	}
	providers := make(map[string]models.ProviderCredentials, len(settings.Providers))
	for name, creds := range settings.Providers {
		if creds.APIKey != "" {
			tail := creds.APIKey
			if len(tail) > 4 {
				tail = tail[len(tail)-4:]
			}
			creds.APIKey = maskPrefix + tail
		}
		providers[name] = creds
	}
	settings.Providers = providers
	return settings
}
