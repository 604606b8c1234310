package reminders

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// Handler lists reminders on the staff dashboard.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a reminders HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes is mounted under /api/staff/reminders.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:     Status(q.Get("status")),
		Kind:       Kind(q.Get("kind")),
		CustomerID: q.Get("customerId"),
	}
	switch filter.Status {
	case "", StatusPending, StatusSent, StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		filter.Limit = n
	}

	items, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("reminders handler: list", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if items == nil {
		items = []Reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": items, "count": len(items)})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("reminders handler: stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
