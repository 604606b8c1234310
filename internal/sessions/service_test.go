package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/pkg/logging"
)

type stubProducts map[string]*catalog.Product

func (s stubProducts) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

type recordingScheduler struct {
	scheduled []uuid.UUID
}

func (r *recordingScheduler) ScheduleExpiry(_ context.Context, cp *CustomerProduct) error {
	r.scheduled = append(r.scheduled, cp.ID)
	return nil
}

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface, *recordingScheduler) {
	t.Helper()
	store, mock := newMockStore(t)
	products := stubProducts{
		"pkg-10": {ID: "pkg-10", Name: "10 buổi", SessionCount: intPtr(10), ExpiryDays: intPtr(30)},
		"single": {ID: "single", Name: "Lẻ"},
	}
	sched := &recordingScheduler{}
	svc := NewService(store, products, sched, logging.Default())
	svc.now = func() time.Time { return time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC) }
	return svc, mock, sched
}

func TestServiceAssign(t *testing.T) {
	svc, mock, sched := newTestService(t)
	mock.ExpectExec("INSERT INTO customer_products").
		WithArgs(pgxmock.AnyArg(), "cust-1", "pkg-10", 10, 0, 10, time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC), pgxmock.AnyArg(), true, "gift", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	cp, err := svc.Assign(context.Background(), AssignInput{CustomerID: "cust-1", ProductID: "pkg-10", Notes: "gift"})
	require.NoError(t, err)
	require.NotNil(t, cp.ExpiryDate)
	assert.Equal(t, time.Date(2026, 11, 16, 3, 0, 0, 0, time.UTC), *cp.ExpiryDate)
	assert.Equal(t, []uuid.UUID{cp.ID}, sched.scheduled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceAssignRejects(t *testing.T) {
	svc, mock, _ := newTestService(t)

	_, err := svc.Assign(context.Background(), AssignInput{ProductID: "pkg-10"})
	assert.ErrorIs(t, err, ErrInvalidAssignment)

	_, err = svc.Assign(context.Background(), AssignInput{CustomerID: "cust-1", ProductID: "single"})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
	assert.True(t, IsClientError(err))

	_, err = svc.Assign(context.Background(), AssignInput{CustomerID: "cust-1", ProductID: "missing"})
	assert.True(t, catalog.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceAdjustRecomputes(t *testing.T) {
	svc, mock, sched := newTestService(t)
	cp := CustomerProduct{ID: uuid.New(), CustomerID: "cust-1", ProductID: "pkg-10", TotalSessions: 5, UsedSessions: 5, IsActive: true}

	mock.ExpectQuery("SELECT (.+) FROM customer_products WHERE id").
		WithArgs(cp.ID).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).AddRow(ledgerRow(cp)...))
	mock.ExpectExec("UPDATE customer_products").
		WithArgs(8, 5, 3, pgxmock.AnyArg(), true, "", pgxmock.AnyArg(), cp.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	got, err := svc.Adjust(context.Background(), cp.ID, AdjustInput{TotalSessions: intPtr(8)})
	require.NoError(t, err)
	assert.Equal(t, 3, got.RemainingSessions)
	assert.Empty(t, sched.scheduled, "expiry untouched")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceAdjustShrinksBelowUsed(t *testing.T) {
	svc, mock, _ := newTestService(t)
	cp := CustomerProduct{ID: uuid.New(), CustomerID: "cust-1", ProductID: "pkg-10", TotalSessions: 5, UsedSessions: 5, IsActive: true}

	mock.ExpectQuery("SELECT (.+) FROM customer_products WHERE id").
		WithArgs(cp.ID).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).AddRow(ledgerRow(cp)...))
	mock.ExpectExec("UPDATE customer_products").
		WithArgs(3, 5, 0, pgxmock.AnyArg(), true, "", pgxmock.AnyArg(), cp.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	got, err := svc.Adjust(context.Background(), cp.ID, AdjustInput{TotalSessions: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalSessions)
	assert.Equal(t, 5, got.UsedSessions)
	assert.Equal(t, 0, got.RemainingSessions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceAdjustDeactivateClearsExpiryReminder(t *testing.T) {
	svc, mock, sched := newTestService(t)
	cp := CustomerProduct{ID: uuid.New(), TotalSessions: 5, IsActive: true}

	mock.ExpectQuery("SELECT (.+) FROM customer_products").
		WithArgs(cp.ID).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).AddRow(ledgerRow(cp)...))
	mock.ExpectExec("UPDATE customer_products").
		WithArgs(5, 0, 5, pgxmock.AnyArg(), false, "", pgxmock.AnyArg(), cp.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	inactive := false
	got, err := svc.Adjust(context.Background(), cp.ID, AdjustInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []uuid.UUID{cp.ID}, sched.scheduled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceAdjustNewExpiryReschedules(t *testing.T) {
	svc, mock, sched := newTestService(t)
	cp := CustomerProduct{ID: uuid.New(), TotalSessions: 5, IsActive: true}
	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM customer_products").
		WithArgs(cp.ID).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).AddRow(ledgerRow(cp)...))
	mock.ExpectExec("UPDATE customer_products").
		WithArgs(5, 0, 5, &expiry, true, "", pgxmock.AnyArg(), cp.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	_, err := svc.Adjust(context.Background(), cp.ID, AdjustInput{ExpiryDate: &expiry})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{cp.ID}, sched.scheduled)
}

func TestServiceAdjustRejectsNegative(t *testing.T) {
	svc, mock, _ := newTestService(t)
	cp := CustomerProduct{ID: uuid.New(), TotalSessions: 5, IsActive: true}
	mock.ExpectQuery("SELECT (.+) FROM customer_products").
		WithArgs(cp.ID).
		WillReturnRows(pgxmock.NewRows(ledgerColumns).AddRow(ledgerRow(cp)...))

	_, err := svc.Adjust(context.Background(), cp.ID, AdjustInput{UsedSessions: intPtr(-1)})
	assert.ErrorIs(t, err, ErrInvalidCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
