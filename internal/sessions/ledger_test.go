package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonchat/supportdesk/internal/catalog"
)

func intPtr(v int) *int { return &v }

func TestNewCustomerProduct(t *testing.T) {
	assigned := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	product := &catalog.Product{ID: "prod-1", SessionCount: intPtr(10), ExpiryDays: intPtr(90)}

	cp := NewCustomerProduct("cust-1", product, assigned)
	assert.Equal(t, "prod-1", cp.ProductID)
	assert.Equal(t, 10, cp.TotalSessions)
	assert.Equal(t, 0, cp.UsedSessions)
	assert.Equal(t, 10, cp.RemainingSessions)
	assert.True(t, cp.IsActive)
	require.NotNil(t, cp.ExpiryDate)
	assert.Equal(t, time.Date(2026, 12, 30, 0, 0, 0, 0, time.UTC), *cp.ExpiryDate)

	open := NewCustomerProduct("cust-1", &catalog.Product{ID: "prod-2"}, assigned)
	assert.Nil(t, open.ExpiryDate)
	assert.Equal(t, 0, open.RemainingSessions)
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		total, used   int
		wantRemaining int
		wantUsed      int
	}{
		{5, 0, 5, 0},
		{5, 5, 0, 5},
		{5, 7, 0, 7},
		{5, -2, 5, 0},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		cp := CustomerProduct{TotalSessions: tt.total, UsedSessions: tt.used, RemainingSessions: 99}
		Recompute(&cp)
		assert.Equal(t, tt.wantRemaining, cp.RemainingSessions, "total=%d used=%d", tt.total, tt.used)
		assert.Equal(t, tt.wantUsed, cp.UsedSessions)
	}
}

func TestConsumeSession(t *testing.T) {
	cp := CustomerProduct{TotalSessions: 2}
	Recompute(&cp)

	require.NoError(t, ConsumeSession(&cp))
	assert.Equal(t, 1, cp.UsedSessions)
	assert.Equal(t, 1, cp.RemainingSessions)

	require.NoError(t, ConsumeSession(&cp))
	assert.Equal(t, 0, cp.RemainingSessions)

	err := ConsumeSession(&cp)
	assert.ErrorIs(t, err, ErrNoSessionsRemaining)
	assert.Equal(t, 2, cp.UsedSessions)
	assert.Equal(t, 0, cp.RemainingSessions)
}

func TestConsumeSessionOnExhaustedPackage(t *testing.T) {
	cp := CustomerProduct{TotalSessions: 5, UsedSessions: 5, RemainingSessions: 3}
	Recompute(&cp)
	assert.Equal(t, 0, cp.RemainingSessions)

	assert.ErrorIs(t, ConsumeSession(&cp), ErrNoSessionsRemaining)
	assert.Equal(t, 5, cp.UsedSessions)
	assert.Equal(t, 0, cp.RemainingSessions)
}

func TestIsExpired(t *testing.T) {
	expiry := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	cp := &CustomerProduct{ExpiryDate: &expiry}

	assert.False(t, IsExpired(cp, expiry))
	assert.True(t, IsExpired(cp, expiry.Add(time.Second)))
	assert.False(t, IsExpired(&CustomerProduct{}, expiry.AddDate(10, 0, 0)))
}

func TestCheckUsable(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	assert.NoError(t, CheckUsable(&CustomerProduct{IsActive: true, TotalSessions: 1}, now))
	assert.ErrorIs(t, CheckUsable(&CustomerProduct{TotalSessions: 1}, now), ErrInactive)
	assert.ErrorIs(t, CheckUsable(&CustomerProduct{IsActive: true, TotalSessions: 1, ExpiryDate: &past}, now), ErrExpired)
	assert.ErrorIs(t, CheckUsable(&CustomerProduct{IsActive: true, TotalSessions: 3, UsedSessions: 3}, now), ErrNoSessionsRemaining)
}

func TestSetCounters(t *testing.T) {
	cp := CustomerProduct{TotalSessions: 5, UsedSessions: 2}
	Recompute(&cp)

	require.NoError(t, SetTotalSessions(&cp, 10))
	assert.Equal(t, 8, cp.RemainingSessions)

	require.NoError(t, SetUsedSessions(&cp, 10))
	assert.Equal(t, 0, cp.RemainingSessions)

	require.NoError(t, SetTotalSessions(&cp, 3))
	assert.Equal(t, 0, cp.RemainingSessions)

	assert.ErrorIs(t, SetTotalSessions(&cp, -1), ErrInvalidCount)
	assert.ErrorIs(t, SetUsedSessions(&cp, -1), ErrInvalidCount)
	assert.Equal(t, 3, cp.TotalSessions)
	assert.Equal(t, 10, cp.UsedSessions)
}
