package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const staffClaimsKey contextKey = "staffClaims"

// StaffClaims are carried by dashboard tokens.
type StaffClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// StaffJWT admits requests bearing an HS256 token signed with secret. The
// token is read from the Authorization header, or from the token query
// parameter for websocket upgrades that cannot set headers.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "staff auth not configured", http.StatusUnauthorized)
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, "missing staff token", http.StatusUnauthorized)
				return
			}
			claims := &StaffClaims{}
			token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid staff token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffClaimsKey, claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// StaffFromContext returns the authenticated staff claims.
func StaffFromContext(ctx context.Context) (*StaffClaims, bool) {
	claims, ok := ctx.Value(staffClaimsKey).(*StaffClaims)
	return claims, ok
}
