package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	transcriptTTL         = 7 * 24 * time.Hour
	transcriptMaxMessages = 250
)

// Message roles stored in a transcript.
const (
	RoleCustomer  = "user"
	RoleAssistant = "assistant"
	RoleStaff     = "staff"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Transport string    `json:"transport,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore keeps the latest messages of each chat session in a Redis
// list that expires a week after the last message.
type TranscriptStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	maxMessages int64
}

func NewTranscriptStore(redisClient *redis.Client) *TranscriptStore {
	if redisClient == nil {
		panic("webchat: redis client required")
	}
	return &TranscriptStore{
		redis:       redisClient,
		tracer:      otel.Tracer("supportdesk.internal.webchat.transcript"),
		maxMessages: transcriptMaxMessages,
	}
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("webchat:transcript:%s", sessionID)
}

// Append stores msg, filling its ID and timestamp when unset.
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if sessionID == "" {
		return errors.New("webchat: session id required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webchat: marshal message: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "webchat.transcript.append")
	defer span.End()
	span.SetAttributes(attribute.String("supportdesk.chat_session_id", sessionID))

	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, transcriptTTL)
	pipe.LTrim(ctx, key, -s.maxMessages, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("webchat: append message: %w", err)
	}
	return nil
}

// List returns up to limit of the newest messages, oldest first. A limit of
// zero returns the whole transcript.
func (s *TranscriptStore) List(ctx context.Context, sessionID string, limit int64) ([]Message, error) {
	if sessionID == "" {
		return nil, errors.New("webchat: session id required")
	}
	ctx, span := s.tracer.Start(ctx, "webchat.transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("webchat: list transcript: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
