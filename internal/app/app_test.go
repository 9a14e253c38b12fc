package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperDigest/internal/config"
	"PaperDigest/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{}
	cfg.Database = config.DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "app.db")}
	cfg.Scraper.Strategy = "arxiv"
	return cfg
}

func TestApplicationRunsWithoutSubscribers(t *testing.T) {
	ctx := context.Background()
	application, err := New(ctx, testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	assert.NoError(t, application.RunDigest(ctx, false))
	assert.NoError(t, application.RunAgent(ctx))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "open storage")
}

func TestAPIMountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	api, err := NewAPI(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.db.Close() })

	w := httptest.NewRecorder()
	api.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
