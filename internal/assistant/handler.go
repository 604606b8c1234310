package assistant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// Handler exposes the assistant over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// PublicRoutes is mounted under /api/assistant.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/answer", h.answer)
	return r
}

// Routes is mounted under /api/staff/assistant.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/suggest", h.suggest)
	return r
}

type answerRequest struct {
	Question string        `json:"question"`
	History  []ChatMessage `json:"history"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := h.service.AnswerQuestion(r.Context(), req.Question, req.History)
	if err != nil {
		h.fail(w, "answer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

type suggestRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history"`
}

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	suggestions, err := h.service.SuggestReplies(r.Context(), req.Message, req.History)
	if err != nil {
		h.fail(w, "suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "assistant unavailable")
	default:
		h.logger.Error("assistant handler: "+op, "error", err)
		writeError(w, http.StatusBadGateway, "assistant failed")
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
