package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/scheduling"
	"github.com/salonchat/supportdesk/internal/sessions"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// Handler serves booking endpoints to the widget and the staff console.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// PublicRoutes is mounted under /api for the chat widget.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/availability", h.availability)
	r.Post("/appointments", h.bookFromWidget)
	r.Get("/appointments/{id}", h.get)
	return r
}

// Routes is mounted under /api/staff/appointments.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.bookByStaff)
	r.Get("/availability", h.availability)
	r.Get("/{id}", h.get)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/reschedule", h.reschedule)
	r.Post("/{id}/session-used", h.markSessionUsed)
	return r
}

// GET ?date=YYYY-MM-DD&productId=&branchId=
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := AvailabilityQuery{
		Date:      strings.TrimSpace(q.Get("date")),
		ProductID: strings.TrimSpace(q.Get("productId")),
		BranchID:  strings.TrimSpace(q.Get("branchId")),
	}
	if query.Date == "" {
		writeError(w, http.StatusBadRequest, "date required")
		return
	}
	out, err := h.service.Availability(r.Context(), query)
	if err != nil {
		h.fail(w, "availability", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) bookFromWidget(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, false)
}

func (h *Handler) bookByStaff(w http.ResponseWriter, r *http.Request) {
	h.book(w, r, true)
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request, byStaff bool) {
	var in BookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in.ByStaff = byStaff
	appt, err := h.service.Book(r.Context(), in)
	if err != nil {
		h.fail(w, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// GET ?date=YYYY-MM-DD[&branchId=] or ?customerId=
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		items []Appointment
		err   error
	)
	switch {
	case q.Get("customerId") != "":
		items, err = h.service.ListByCustomer(r.Context(), q.Get("customerId"))
	case q.Get("date") != "":
		items, err = h.service.ListByDate(r.Context(), q.Get("date"), q.Get("branchId"))
	default:
		writeError(w, http.StatusBadRequest, "date or customerId required")
		return
	}
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	if items == nil {
		items = []Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items, "count": len(items)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		h.fail(w, "confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	appt, err := h.service.Cancel(r.Context(), id, strings.TrimSpace(body.Reason))
	if err != nil {
		h.fail(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.fail(w, "complete", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appt, err := h.service.Reschedule(r.Context(), id, body.Date, body.Time)
	if err != nil {
		h.fail(w, "reschedule", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) markSessionUsed(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	usage, err := h.service.MarkSessionUsed(r.Context(), id)
	if err != nil {
		h.fail(w, "mark session used", err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
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
	case errors.Is(err, ErrNotFound), catalog.IsNotFound(err), errors.Is(err, sessions.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrConflict), errors.Is(err, ErrSessionAlreadyUsed),
		errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrDateOff), errors.Is(err, ErrOutsideWindow), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoPackage), errors.Is(err, scheduling.ErrInvalidFormat), errors.Is(err, scheduling.ErrInvalidRule),
		sessions.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("appointments handler: "+op, "error", err)
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
