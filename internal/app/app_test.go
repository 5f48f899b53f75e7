package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"variant-merger/internal/catalog"
	"variant-merger/internal/config"
	"variant-merger/internal/models"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_PATH", filepath.Join(dir, "app.db"))
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}

func TestNew_SeedsSettingsWithoutOracle(t *testing.T) {
	a := newTestApp(t)

	settings, err := a.Settings.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80.0, settings.TitleSimilarity)
	assert.Equal(t, "openai", settings.Provider)
	assert.Empty(t, settings.Credentials().APIKey)
}

func TestApp_StartTickStatus(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	fx, err := catalog.ParseFixture([]byte(`
items:
  - {id: "1", name: Red Shirt, brand: X, category_ids: ["5"]}
  - {id: "2", name: red shirt, brand: X, category_ids: ["5"]}
`))
	require.NoError(t, err)
	_, err = a.Catalog.Seed(ctx, fx)
	require.NoError(t, err)

	router := a.Router()

	body, _ := json.Marshal(map[string]any{"item_ids": []string{"1", "2"}})
	req := httptest.NewRequest(http.MethodPost, "/api/run/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = a.Controller.Tick(ctx)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/run/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.RunIdle, status.Status)
	assert.Equal(t, int64(1), status.Stats.Created)
	assert.Equal(t, 1, status.Queue.Completed)
}
