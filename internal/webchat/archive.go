package webchat

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/salonchat/supportdesk/internal/archive"
	"github.com/salonchat/supportdesk/internal/http/middleware"
)

// Archiver exports a finished transcript to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, record *archive.TranscriptRecord) (string, error)
}

// WithArchiver enables the staff archive endpoint.
func (h *Handler) WithArchiver(a Archiver) *Handler {
	h.archiver = a
	return h
}

// archiveSession copies the full Redis transcript to the archive. The live
// transcript is left in place and expires on its own TTL.
func (h *Handler) archiveSession(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript archive not configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if !validSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	msgs, err := h.transcript.List(r.Context(), sessionID, 0)
	if err != nil {
		h.logger.Error("webchat: load transcript for archive failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	record := &archive.TranscriptRecord{SessionID: sessionID, Messages: make([]archive.Message, 0, len(msgs))}
	if claims, ok := middleware.StaffFromContext(r.Context()); ok {
		record.ArchivedBy = claims.Subject
	}
	for _, m := range msgs {
		record.Messages = append(record.Messages, archive.Message{Role: m.Role, Text: m.Text, Timestamp: m.Timestamp})
	}

	key, err := h.archiver.Archive(r.Context(), record)
	switch {
	case errors.Is(err, archive.ErrEmptyTranscript):
		writeError(w, http.StatusNotFound, "no messages for session")
		return
	case err != nil:
		h.logger.Error("webchat: archive transcript failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to archive transcript")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "messageCount": record.MessageCount})
}
