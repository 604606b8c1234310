package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/webchat"
	"github.com/salonchat/supportdesk/pkg/logging"
)

const testSecret = "staff-secret"

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.New("error")
	return New(&Config{
		Logger:          logger,
		CatalogHandler:  catalog.NewHandler(catalog.NewStore(client), logger),
		WebchatHandler:  webchat.NewHandler(webchat.NewTranscriptStore(client), nil, nil, nil, nil, logger),
		MetricsHandler:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		ReadinessChecks: checks,
		StaffJWTSecret:  testSecret,
	})
}

func staffToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "staff-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealth(t *testing.T) {
	rec := serve(newTestRouter(t, nil), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterReadiness(t *testing.T) {
	r := newTestRouter(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

func TestRouterStaffRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/staff/catalog/settings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/staff/catalog/settings", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t))
	rec = serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "venueName")
}

func TestRouterPublicRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/catalog/products", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/chat/widget.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterOmitsUnconfiguredHandlers(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/availability?date=2026-10-19", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
