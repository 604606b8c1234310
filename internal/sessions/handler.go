package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// Handler exposes package management to staff.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a sessions HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes is mounted under /api/staff/customer-products.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.assign)
	r.Get("/", h.listByCustomer)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.adjust)
	r.Delete("/{id}", h.delete)
	return r
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var in AssignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cp, err := h.service.Assign(r.Context(), in)
	if err != nil {
		h.fail(w, "assign", err)
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

func (h *Handler) listByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimSpace(r.URL.Query().Get("customerId"))
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customerId required")
		return
	}
	items, err := h.service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	if items == nil {
		items = []CustomerProduct{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"customerProducts": items, "count": len(items)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	cp, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var in AdjustInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cp, err := h.service.Adjust(r.Context(), id, in)
	if err != nil {
		h.fail(w, "adjust", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), catalog.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("sessions handler: "+op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
