package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, kind, appointment_id, customer_product_id, customer_id, recipient_name, recipient_email,
	subject, body, due_at, scheduled_for, status, attempts, last_error, sent_at, created_at, updated_at`

// Store persists reminders.
type Store struct {
	db DB
}

// NewStore creates a reminder store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("reminders: db required")
	}
	return &Store{db: db}
}

// Create inserts a pending reminder.
func (s *Store) Create(ctx context.Context, r *Reminder) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO reminders (id, kind, appointment_id, customer_product_id, customer_id, recipient_name, recipient_email,
			subject, body, due_at, scheduled_for, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, $14)`,
		r.ID, string(r.Kind), r.AppointmentID, r.CustomerProductID, r.CustomerID, r.RecipientName, r.RecipientEmail,
		r.Subject, r.Body, r.DueAt, r.ScheduledFor, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reminders: create: %w", err)
	}
	return nil
}

// DeletePendingForAppointment drops the unsent reminders of an appointment.
func (s *Store) DeletePendingForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM reminders WHERE appointment_id = $1 AND status = 'pending'`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("reminders: delete pending for appointment: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePendingForPackage drops the unsent reminders of a customer package.
func (s *Store) DeletePendingForPackage(ctx context.Context, customerProductID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM reminders WHERE customer_product_id = $1 AND status = 'pending'`, customerProductID)
	if err != nil {
		return 0, fmt.Errorf("reminders: delete pending for package: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDue returns pending reminders scheduled on or before asOf, oldest first.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM reminders
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListFilter narrows the staff reminder list. Zero values match everything.
type ListFilter struct {
	Status     Status
	Kind       Kind
	CustomerID string
	Limit      int
}

// List returns reminders for the staff dashboard, soonest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Reminder, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM reminders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR kind = $2) AND ($3 = '' OR customer_id = $3)
		ORDER BY scheduled_for ASC
		LIMIT $4`, string(f.Status), string(f.Kind), f.CustomerID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// MarkSent moves a reminder from pending to sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders SET status = 'sent', sent_at = $1, attempts = attempts + 1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, at, id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent %s: %w", id, ErrNotPending)
	}
	return nil
}

// RecordFailure counts a failed dispatch attempt. Once attempts reach
// maxAttempts the reminder is marked failed; otherwise it stays pending for
// the next poll. The resulting status is returned.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, cause string, maxAttempts int) (Status, error) {
	var status string
	err := s.db.QueryRow(ctx, `
		UPDATE reminders
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    updated_at = $3
		WHERE id = $4 AND status = 'pending'
		RETURNING status`, cause, maxAttempts, time.Now().UTC(), id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("reminders: record failure %s: %w", id, ErrNotPending)
	}
	if err != nil {
		return "", fmt.Errorf("reminders: record failure: %w", err)
	}
	return Status(status), nil
}

// Stats counts reminders by status.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM reminders`).Scan(&stats.Pending, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("reminders: stats: %w", err)
	}
	return &stats, nil
}

func scanAll(rows pgx.Rows) ([]Reminder, error) {
	var result []Reminder
	for rows.Next() {
		var r Reminder
		var kind, status string
		err := rows.Scan(
			&r.ID, &kind, &r.AppointmentID, &r.CustomerProductID, &r.CustomerID, &r.RecipientName, &r.RecipientEmail,
			&r.Subject, &r.Body, &r.DueAt, &r.ScheduledFor, &status, &r.Attempts, &r.LastError, &r.SentAt,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan: %w", err)
		}
		r.Kind = Kind(kind)
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
