// Package archive exports closed chat transcripts to S3 so they outlive the
// Redis retention window.
package archive

import "time"

const recordVersion = "1"

// TranscriptRecord is the JSON document written per archived chat session.
type TranscriptRecord struct {
	Version      string    `json:"version"`
	SessionID    string    `json:"session_id"`
	ArchivedAt   time.Time `json:"archived_at"`
	ArchivedBy   string    `json:"archived_by,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages"`
}

// Message is one transcript turn with contact details scrubbed.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one line of the monthly JSONL index.
type ManifestEntry struct {
	SessionID    string `json:"session_id"`
	Key          string `json:"key"`
	ArchivedAt   string `json:"archived_at"`
	MessageCount int    `json:"message_count"`
}
