package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface; both pools and transactions satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, customer_id, product_id, total_sessions, used_sessions, remaining_sessions,
	assigned_date, expiry_date, is_active, notes, created_at, updated_at`

// Store persists customer_products rows.
type Store struct {
	db DB
}

// NewStore creates a session ledger store. Pass a pgx.Tx to run inside a
// caller's transaction.
func NewStore(db DB) *Store {
	if db == nil {
		panic("sessions: db required")
	}
	return &Store{db: db}
}

// Create inserts a new package, recomputing remaining sessions first.
func (s *Store) Create(ctx context.Context, cp *CustomerProduct) error {
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	Recompute(cp)
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO customer_products (id, customer_id, product_id, total_sessions, used_sessions, remaining_sessions, assigned_date, expiry_date, is_active, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cp.ID, cp.CustomerID, cp.ProductID, cp.TotalSessions, cp.UsedSessions, cp.RemainingSessions,
		cp.AssignedDate, cp.ExpiryDate, cp.IsActive, cp.Notes, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessions: create: %w", err)
	}
	return nil
}

// Get loads one package.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*CustomerProduct, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM customer_products WHERE id = $1`, id)
	cp, err := scanOne(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: get %s: %w", id, err)
	}
	return cp, nil
}

// GetForUpdate loads and row-locks a package. Only meaningful inside a
// transaction.
func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (*CustomerProduct, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM customer_products WHERE id = $1 FOR UPDATE`, id)
	cp, err := scanOne(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: lock %s: %w", id, err)
	}
	return cp, nil
}

// ListByCustomer returns a customer's packages, newest first.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]CustomerProduct, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM customer_products
		WHERE customer_id = $1
		ORDER BY assigned_date DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("sessions: list by customer: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// FindUsable returns the customer's oldest active package for productID that
// still has sessions and has not expired as of asOf.
func (s *Store) FindUsable(ctx context.Context, customerID, productID string, asOf time.Time) (*CustomerProduct, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM customer_products
		WHERE customer_id = $1 AND product_id = $2 AND is_active AND remaining_sessions > 0
		  AND (expiry_date IS NULL OR expiry_date >= $3)
		ORDER BY assigned_date ASC
		LIMIT 1`, customerID, productID, asOf)
	cp, err := scanOne(row)
	if err != nil {
		return nil, fmt.Errorf("sessions: find usable: %w", err)
	}
	return cp, nil
}

// Update writes counters, status, expiry and notes back. Remaining sessions
// are recomputed from the counters, never taken from the caller.
func (s *Store) Update(ctx context.Context, cp *CustomerProduct) error {
	Recompute(cp)
	cp.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE customer_products
		SET total_sessions = $1, used_sessions = $2, remaining_sessions = $3, expiry_date = $4, is_active = $5, notes = $6, updated_at = $7
		WHERE id = $8`,
		cp.TotalSessions, cp.UsedSessions, cp.RemainingSessions, cp.ExpiryDate, cp.IsActive, cp.Notes, cp.UpdatedAt, cp.ID,
	)
	if err != nil {
		return fmt.Errorf("sessions: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessions: update %s: %w", cp.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a package. Appointments keep their history with the link
// cleared by the foreign key.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM customer_products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessions: delete %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanOne(row pgx.Row) (*CustomerProduct, error) {
	var cp CustomerProduct
	err := row.Scan(
		&cp.ID, &cp.CustomerID, &cp.ProductID,
		&cp.TotalSessions, &cp.UsedSessions, &cp.RemainingSessions,
		&cp.AssignedDate, &cp.ExpiryDate, &cp.IsActive, &cp.Notes,
		&cp.CreatedAt, &cp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func scanAll(rows pgx.Rows) ([]CustomerProduct, error) {
	var result []CustomerProduct
	for rows.Next() {
		cp, err := scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("sessions: scan: %w", err)
		}
		result = append(result, *cp)
	}
	return result, rows.Err()
}
