package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, allowed []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/availability", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://spa.example.com/"}, http.MethodGet, "https://spa.example.com", false)
	assert.True(t, called)
	assert.Equal(t, "https://spa.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, corsAllowedMethods, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://spa.example.com"}, http.MethodGet, "https://evil.example.com", false)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://anywhere.example.com", false)
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := corsRequest(t, []string{"https://spa.example.com"}, http.MethodOptions, "https://spa.example.com", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, called = corsRequest(t, []string{"https://spa.example.com"}, http.MethodOptions, "https://evil.example.com", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A plain OPTIONS without preflight headers reaches the handler.
	_, called = corsRequest(t, nil, http.MethodOptions, "", false)
	assert.True(t, called)
}
