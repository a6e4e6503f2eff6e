package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerCaptureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance("user_a", 100)
	l.SetBalance("user_b", 100)
	l.SetBalance("user_c", 5)

	err := l.Capture(ctx, "match_1", []string{"user_a", "user_b", "user_c"}, 10)
	require.Error(t, err)

	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "INSUFFICIENT_BALANCE", coded.Code)
	assert.Equal(t, "user_c", coded.UserID)

	// nobody was debited
	assert.Equal(t, int64(100), l.Balance("user_a"))
	assert.Equal(t, int64(100), l.Balance("user_b"))
	assert.Equal(t, int64(5), l.Balance("user_c"))
}

func TestMemoryLedgerCaptureReportsFirstShortfall(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance("user_a", 1)
	l.SetBalance("user_b", 0)

	err := l.Capture(ctx, "match_1", []string{"user_a", "user_b"}, 10)
	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, "user_a", coded.UserID)
}

func TestMemoryLedgerPayoutSettlesOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance("user_a", 50)
	l.SetBalance("user_b", 50)

	require.NoError(t, l.Capture(ctx, "match_1", []string{"user_a", "user_b"}, 20))
	assert.Equal(t, int64(30), l.Balance("user_a"))
	assert.Equal(t, int64(30), l.Balance("user_b"))

	rewards := []Reward{{UserID: "user_a", Amount: 38}}
	require.NoError(t, l.Payout(ctx, "match_1", rewards))
	assert.Equal(t, int64(68), l.Balance("user_a"))

	assert.Error(t, l.Payout(ctx, "match_1", rewards), "double payout must fail")
	assert.Error(t, l.Refund(ctx, "match_1"), "refund after payout must fail")
	assert.Equal(t, int64(68), l.Balance("user_a"))
}

func TestMemoryLedgerRefundReturnsStakesInFull(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance("user_a", 50)
	l.SetBalance("user_b", 50)

	require.NoError(t, l.Capture(ctx, "match_1", []string{"user_a", "user_b"}, 15))
	require.NoError(t, l.Refund(ctx, "match_1"))

	assert.Equal(t, int64(50), l.Balance("user_a"))
	assert.Equal(t, int64(50), l.Balance("user_b"))
	assert.Error(t, l.Refund(ctx, "match_1"), "double refund must fail")
}

func TestMemoryLedgerRejectsDuplicateCapture(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance("user_a", 100)

	require.NoError(t, l.Capture(ctx, "match_1", []string{"user_a"}, 10))
	assert.Error(t, l.Capture(ctx, "match_1", []string{"user_a"}, 10))
	assert.Equal(t, int64(90), l.Balance("user_a"))
}
