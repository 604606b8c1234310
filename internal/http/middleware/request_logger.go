package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// probePaths are polled by load balancers and scrapers; they log at debug.
var probePaths = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// RequestLogger writes one access line per request and echoes the request id
// back in X-Request-ID.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			id := requestID(r)
			w.Header().Set("X-Request-ID", id)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Info
			switch {
			case status >= http.StatusInternalServerError:
				log = logger.Error
			case probePaths[r.URL.Path]:
				log = logger.Debug
			}
			log("http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"remote_ip", r.RemoteAddr,
				"duration_ms", time.Since(began).Milliseconds(),
			)
		})
	}
}

// requestID prefers the caller's id, then chi's, then a fresh UUID.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}
