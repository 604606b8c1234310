package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// ErrEmptyTranscript is returned when there is nothing to archive.
var ErrEmptyTranscript = errors.New("archive: transcript is empty")

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes transcript records to a bucket.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore returns nil when bucket or client is missing.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if s3Client == nil || bucket == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

func recordKey(at time.Time, sessionID string) string {
	return fmt.Sprintf("transcripts/v%s/%d/%02d/%02d/%s.json", recordVersion, at.Year(), at.Month(), at.Day(), sessionID)
}

func manifestKey(at time.Time) string {
	return fmt.Sprintf("transcripts/v%s/manifests/%d-%02d.jsonl", recordVersion, at.Year(), at.Month())
}

// Archive scrubs and uploads record, then indexes it in the monthly
// manifest. It returns the object key.
func (s *Store) Archive(ctx context.Context, record *TranscriptRecord) (string, error) {
	if len(record.Messages) == 0 {
		return "", ErrEmptyTranscript
	}
	now := s.now().UTC()
	record.Version = recordVersion
	record.ArchivedAt = now
	record.MessageCount = len(record.Messages)
	record.StartedAt = record.Messages[0].Timestamp
	record.EndedAt = record.Messages[len(record.Messages)-1].Timestamp
	ScrubMessages(record.Messages)

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("archive: marshal record: %w", err)
	}
	key := recordKey(now, record.SessionID)
	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived chat transcript", "session_id", record.SessionID, "s3_key", key, "message_count", record.MessageCount)

	entry := ManifestEntry{SessionID: record.SessionID, Key: key, ArchivedAt: now.Format(time.RFC3339), MessageCount: record.MessageCount}
	if err := s.appendManifest(ctx, now, entry); err != nil {
		s.logger.Warn("archive: manifest append failed", "session_id", record.SessionID, "error", err)
	}
	return key, nil
}

// appendManifest rewrites the month's JSONL file with entry added; S3 has no
// append.
func (s *Store) appendManifest(ctx context.Context, now time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := manifestKey(now)

	var buf bytes.Buffer
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	switch {
	case err == nil:
		_, copyErr := io.Copy(&buf, out.Body)
		_ = out.Body.Close()
		if copyErr != nil {
			return fmt.Errorf("archive: read manifest: %w", copyErr)
		}
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
	case isNoSuchKey(err):
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("archive: put manifest: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
