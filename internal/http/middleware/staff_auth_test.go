package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signStaffToken(t *testing.T, secret string, method jwt.SigningMethod, expires time.Duration) string {
	t.Helper()
	claims := StaffClaims{
		Name: "Lan",
		Role: "receptionist",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expires)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func serveStaff(secret string, req *http.Request) (*httptest.ResponseRecorder, *StaffClaims) {
	var got *StaffClaims
	rec := httptest.NewRecorder()
	StaffJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = StaffFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, got
}

func TestStaffJWTRejects(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
	}{
		{"no secret configured", "", "Bearer " + signStaffToken(t, "s", jwt.SigningMethodHS256, time.Minute)},
		{"missing header", "secret", ""},
		{"wrong secret", "secret", "Bearer " + signStaffToken(t, "other", jwt.SigningMethodHS256, time.Minute)},
		{"expired", "secret", "Bearer " + signStaffToken(t, "secret", jwt.SigningMethodHS256, -time.Minute)},
		{"other algorithm", "secret", "Bearer " + signStaffToken(t, "secret", jwt.SigningMethodHS512, time.Minute)},
		{"not bearer", "secret", "Basic abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/staff/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec, claims := serveStaff(tc.secret, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, claims)
		})
	}
}

func TestStaffJWTAccepts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/staff/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, "secret", jwt.SigningMethodHS256, time.Minute))

	rec, claims := serveStaff("secret", req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, "receptionist", claims.Role)
}

func TestStaffJWTQueryTokenOnlyForWebsocket(t *testing.T) {
	token := signStaffToken(t, "secret", jwt.SigningMethodHS256, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/staff/events?token="+token, nil)
	rec, _ := serveStaff("secret", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/staff/events?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rec, claims := serveStaff("secret", req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, claims)
}
