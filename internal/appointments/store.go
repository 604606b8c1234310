package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salonchat/supportdesk/internal/sessions"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SlotCheck inspects the appointments already occupying the target date and
// rejects the write when the slot is no longer free.
type SlotCheck func(existing []Appointment) error

const selectColumns = `id, customer_id, customer_name, customer_phone, customer_email, product_id, branch_id, staff_id,
	appointment_date::text, slot_time, duration_minutes, status, customer_product_id, is_session_used, session_used_at,
	notes, cancel_reason, created_at, updated_at`

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// Store persists appointments.
type Store struct {
	db DB
}

// NewStore creates an appointment store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("appointments: db required")
	}
	return &Store{db: db}
}

// CreateChecked inserts a under a serializable transaction after check
// accepts the occupying appointments for its date.
func (s *Store) CreateChecked(ctx context.Context, a *Appointment, check SlotCheck) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, serializable)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := listOccupying(ctx, tx, a.Date, a.ProductID, a.BranchID, uuid.Nil)
	if err != nil {
		return err
	}
	if err := check(existing); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, customer_id, customer_name, customer_phone, customer_email, product_id, branch_id, staff_id,
			appointment_date, slot_time, duration_minutes, status, customer_product_id, is_session_used, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10, $11, $12, $13, FALSE, $14, $15, $16)`,
		a.ID, a.CustomerID, a.CustomerName, a.CustomerPhone, a.CustomerEmail, a.ProductID, a.BranchID, a.StaffID,
		a.Date, a.Time, a.DurationMinutes, string(a.Status), a.CustomerProductID, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapTxError("insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError("commit insert", err)
	}
	return nil
}

// RescheduleChecked moves an appointment to date/slot and marks it
// rescheduled, provided its status is still from and check accepts the
// target date's occupancy (excluding the appointment itself).
func (s *Store) RescheduleChecked(ctx context.Context, a *Appointment, from Status, date, slot string, durationMinutes int, check SlotCheck) error {
	tx, err := s.db.BeginTx(ctx, serializable)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := listOccupying(ctx, tx, date, a.ProductID, a.BranchID, a.ID)
	if err != nil {
		return err
	}
	if err := check(existing); err != nil {
		return err
	}
	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET appointment_date = $1::date, slot_time = $2, duration_minutes = $3, status = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		date, slot, durationMinutes, string(StatusRescheduled), now, a.ID, string(from),
	)
	if err != nil {
		return mapTxError("reschedule", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: reschedule %s: %w", a.ID, ErrConflict)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError("commit reschedule", err)
	}
	a.Date, a.Time, a.DurationMinutes, a.Status, a.UpdatedAt = date, slot, durationMinutes, StatusRescheduled, now
	return nil
}

// Get loads one appointment.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanOne(row)
	if err != nil {
		return nil, fmt.Errorf("appointments: get %s: %w", id, err)
	}
	return a, nil
}

// ListActiveForDate returns the non-cancelled appointments on date for the
// product (empty matches any product) and branch (nil matches any branch).
func (s *Store) ListActiveForDate(ctx context.Context, date, productID string, branchID *string) ([]Appointment, error) {
	return listOccupying(ctx, s.db, date, productID, branchID, uuid.Nil)
}

// ListByDate returns every appointment on date, for the staff calendar.
func (s *Store) ListByDate(ctx context.Context, date string, branchID *string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE appointment_date = $1::date AND ($2::text IS NULL OR branch_id = $2)
		ORDER BY slot_time ASC, created_at ASC`, date, branchID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by date: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// ListByCustomer returns a customer's appointments, most recent first.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE customer_id = $1
		ORDER BY appointment_date DESC, slot_time DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by customer: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Transition moves an appointment from one status to another. The update
// only applies while the stored status still equals from.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to Status, reason string) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, cancel_reason = CASE WHEN $1 = 'cancelled' THEN $2 ELSE cancel_reason END, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(to), reason, now, id, string(from),
	)
	if err != nil {
		return fmt.Errorf("appointments: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: transition %s %s->%s: %w", id, from, to, ErrConflict)
	}
	return nil
}

// MarkSessionUsed flips the appointment's session flag and consumes one
// session from its linked package in a single transaction. The flag flips
// at most once; later calls fail with ErrSessionAlreadyUsed and leave the
// package untouched.
func (s *Store) MarkSessionUsed(ctx context.Context, id uuid.UUID, at time.Time) (*sessions.CustomerProduct, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		packageID *uuid.UUID
		used      bool
	)
	err = tx.QueryRow(ctx, `SELECT customer_product_id, is_session_used FROM appointments WHERE id = $1 FOR UPDATE`, id).
		Scan(&packageID, &used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: mark session used %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: mark session used: %w", err)
	}
	if used {
		return nil, ErrSessionAlreadyUsed
	}
	if packageID == nil {
		return nil, ErrNoPackage
	}

	ledger := sessions.NewStore(tx)
	cp, err := ledger.GetForUpdate(ctx, *packageID)
	if err != nil {
		return nil, err
	}
	if err := sessions.ConsumeSession(cp); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET is_session_used = TRUE, session_used_at = $1, updated_at = $1
		WHERE id = $2 AND is_session_used = FALSE`, at, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: flag session used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSessionAlreadyUsed
	}
	if err := ledger.Update(ctx, cp); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit session used: %w", err)
	}
	return cp, nil
}

func listOccupying(ctx context.Context, q querier, date, productID string, branchID *string, exclude uuid.UUID) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+selectColumns+`
		FROM appointments
		WHERE appointment_date = $1::date
		  AND ($2 = '' OR product_id = $2)
		  AND ($3::text IS NULL OR branch_id = $3)
		  AND status <> 'cancelled'
		  AND id <> $4
		ORDER BY slot_time ASC`, date, productID, branchID, exclude)
	if err != nil {
		return nil, fmt.Errorf("appointments: list occupying: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func mapTxError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("appointments: %s: %w", op, ErrSlotUnavailable)
	}
	return fmt.Errorf("appointments: %s: %w", op, err)
}

func scanOne(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.CustomerName, &a.CustomerPhone, &a.CustomerEmail, &a.ProductID, &a.BranchID, &a.StaffID,
		&a.Date, &a.Time, &a.DurationMinutes, &status, &a.CustomerProductID, &a.IsSessionUsed, &a.SessionUsedAt,
		&a.Notes, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func scanAll(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
