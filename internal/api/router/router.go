package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/salonchat/supportdesk/internal/appointments"
	"github.com/salonchat/supportdesk/internal/assistant"
	"github.com/salonchat/supportdesk/internal/catalog"
	httpmiddleware "github.com/salonchat/supportdesk/internal/http/middleware"
	"github.com/salonchat/supportdesk/internal/reminders"
	"github.com/salonchat/supportdesk/internal/sessions"
	"github.com/salonchat/supportdesk/internal/webchat"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// HealthCheck probes one dependency for /ready.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration. Nil handlers leave their routes out.
type Config struct {
	Logger              *logging.Logger
	CatalogHandler      *catalog.Handler
	AppointmentsHandler *appointments.Handler
	SessionsHandler     *sessions.Handler
	RemindersHandler    *reminders.Handler
	AssistantHandler    *assistant.Handler
	WebchatHandler      *webchat.Handler
	StaffEvents         http.Handler
	MetricsHandler      http.Handler
	ReadinessChecks     map[string]HealthCheck

	StaffJWTSecret     string
	CORSAllowedOrigins []string
	// PublicRateLimit caps widget writes per client per second; zero disables.
	PublicRateLimit float64
	PublicRateBurst int
}

// New creates the chi router with every route configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	r.Get("/ready", readiness(cfg.ReadinessChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Customer widget endpoints.
	r.Group(func(public chi.Router) {
		if cfg.PublicRateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicRateBurst))
		}
		if cfg.CatalogHandler != nil {
			public.Mount("/api/catalog", cfg.CatalogHandler.PublicRoutes())
		}
		if cfg.AssistantHandler != nil {
			public.Mount("/api/assistant", cfg.AssistantHandler.PublicRoutes())
		}
		if cfg.AppointmentsHandler != nil {
			public.Mount("/api", cfg.AppointmentsHandler.PublicRoutes())
		}
		if cfg.WebchatHandler != nil {
			public.Mount("/chat", cfg.WebchatHandler.PublicRoutes())
		}
	})

	r.Route("/api/staff", func(staff chi.Router) {
		staff.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
		if cfg.CatalogHandler != nil {
			staff.Mount("/catalog", cfg.CatalogHandler.Routes())
		}
		if cfg.AppointmentsHandler != nil {
			staff.Mount("/appointments", cfg.AppointmentsHandler.Routes())
		}
		if cfg.SessionsHandler != nil {
			staff.Mount("/customer-products", cfg.SessionsHandler.Routes())
		}
		if cfg.RemindersHandler != nil {
			staff.Mount("/reminders", cfg.RemindersHandler.Routes())
		}
		if cfg.AssistantHandler != nil {
			staff.Mount("/assistant", cfg.AssistantHandler.Routes())
		}
		if cfg.WebchatHandler != nil {
			staff.Mount("/chat", cfg.WebchatHandler.Routes())
		}
		if cfg.StaffEvents != nil {
			staff.Handle("/events", cfg.StaffEvents)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
