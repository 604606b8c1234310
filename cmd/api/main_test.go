package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/salonchat/supportdesk/internal/config"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/pkg/logging"
)

func TestSetupMetricsExposesRegisteredCollectors(t *testing.T) {
	registry, handler := setupMetrics()
	metrics.NewChatMetrics(registry).ObserveMessage("user", "http")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supportdesk_chat_messages_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestVenueLocation(t *testing.T) {
	logger := logging.New("error")
	assert.Equal(t, time.UTC, venueLocation("", logger))
	assert.Equal(t, time.UTC, venueLocation("Mars/Olympus", logger))
	assert.Equal(t, "Asia/Ho_Chi_Minh", venueLocation("Asia/Ho_Chi_Minh", logger).String())
}

func TestLoadWidgetScript(t *testing.T) {
	data, err := loadWidgetScript("")
	require.NoError(t, err)
	assert.Nil(t, data)

	path := filepath.Join(t.TempDir(), "widget.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log(1)"), 0o600))
	data, err = loadWidgetScript(path)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))

	_, err = loadWidgetScript(filepath.Join(t.TempDir(), "missing.js"))
	require.Error(t, err)
}

func TestWireBuildsEveryHandler(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	registry, _ := setupMetrics()
	cfg := &appconfig.Config{VenueTimezone: "Asia/Ho_Chi_Minh", AssistantLanguage: "vi", StaffJWTSecret: "s"}
	app := wire(cfg, logging.New("error"), nil, client, nil, nil, registry, nil)

	assert.NotNil(t, app.hub)
	assert.NotNil(t, app.router.CatalogHandler)
	assert.NotNil(t, app.router.AppointmentsHandler)
	assert.NotNil(t, app.router.SessionsHandler)
	assert.NotNil(t, app.router.RemindersHandler)
	assert.NotNil(t, app.router.AssistantHandler)
	assert.NotNil(t, app.router.WebchatHandler)
	assert.Equal(t, "s", app.router.StaffJWTSecret)
}
