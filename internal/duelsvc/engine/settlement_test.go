package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

func capturedMatch(t *testing.T, l *MemoryLedger, matchID string, userIDs []string, stake int64) *models.Match {
	t.Helper()
	for _, id := range userIDs {
		l.SetBalance(id, 100)
	}
	require.NoError(t, l.Capture(context.Background(), matchID, userIDs, stake))

	totalEscrow := stake * int64(len(userIDs))
	return &models.Match{
		MatchID:       matchID,
		RoomID:        "room_1",
		ServerID:      "frege",
		Participants:  userIDs,
		StakeAmount:   stake,
		TotalEscrow:   totalEscrow,
		SystemFeeRate: 0.05,
		SystemFee:     totalEscrow * 5 / 100,
		Status:        models.MatchOngoing,
		StartedAt:     time.Now(),
	}
}

func rankedResults(matchID string, userIDs ...string) []models.MatchResult {
	results := make([]models.MatchResult, len(userIDs))
	for i, id := range userIDs {
		results[i] = models.MatchResult{
			MatchID:      matchID,
			UserID:       id,
			DisplayName:  id,
			CorrectCount: 10 - i,
			TotalTimeMs:  int64(10000 + i*1000),
			RankPosition: i + 1,
			SubmittedAt:  time.Now(),
		}
	}
	return results
}

func TestSettleSplitsPoolAndPaysOut(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	users := []string{"user_a", "user_b", "user_c"}
	match := capturedMatch(t, l, "match_1", users, 40)
	// escrow 120, fee 6, distributable 114

	s := NewSettlement(l, NopPersistence{}, RewardTable{3: {70, 30, 0}})
	results, err := s.Settle(ctx, match, rankedResults("match_1", users...))
	require.NoError(t, err)

	// 114*70/100=79 and 114*30/100=34 leave 1 over for rank 1
	assert.Equal(t, int64(80), results[0].RewardAmount)
	assert.Equal(t, int64(34), results[1].RewardAmount)
	assert.Equal(t, int64(0), results[2].RewardAmount)

	var sum int64
	for _, r := range results {
		sum += r.RewardAmount
	}
	assert.Equal(t, match.TotalEscrow-match.SystemFee, sum)

	assert.Equal(t, models.MatchFinished, match.Status)
	assert.False(t, match.EndedAt.IsZero())

	assert.Equal(t, int64(140), l.Balance("user_a")) // 100 - 40 + 80
	assert.Equal(t, int64(94), l.Balance("user_b"))  // 100 - 40 + 34
	assert.Equal(t, int64(60), l.Balance("user_c"))  // 100 - 40
}

func TestSettleUnknownCountFallsBackToWinnerTakeAll(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	users := []string{"user_a", "user_b"}
	match := capturedMatch(t, l, "match_1", users, 40)

	s := NewSettlement(l, NopPersistence{}, RewardTable{})
	results, err := s.Settle(ctx, match, rankedResults("match_1", users...))
	require.NoError(t, err)

	assert.Equal(t, match.TotalEscrow-match.SystemFee, results[0].RewardAmount)
	assert.Zero(t, results[1].RewardAmount)
}

func TestSettleFlagsOnCorruptShareTable(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	users := []string{"user_a", "user_b"}
	match := capturedMatch(t, l, "match_1", users, 40)

	// a row like this never passes config validation; if one reaches
	// settlement anyway the match must be flagged, not paid
	s := NewSettlement(l, NopPersistence{}, RewardTable{2: {200, -100}})
	_, err := s.Settle(ctx, match, rankedResults("match_1", users...))

	assert.Equal(t, ErrSettlementInconsistency, err)
	assert.Equal(t, models.MatchFlagged, match.Status)

	// escrow untouched, stakes still held
	assert.Equal(t, int64(60), l.Balance("user_a"))
	assert.Equal(t, int64(60), l.Balance("user_b"))
}

func TestSettlePayoutFailureFlagsMatch(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	match := &models.Match{
		MatchID:      "match_missing",
		Participants: []string{"user_a", "user_b"},
		TotalEscrow:  80,
		SystemFee:    4,
		Status:       models.MatchOngoing,
	}

	s := NewSettlement(l, NopPersistence{}, DefaultRewardTable())
	_, err := s.Settle(ctx, match, rankedResults("match_missing", "user_a", "user_b"))

	require.Error(t, err)
	assert.Equal(t, models.MatchFlagged, match.Status)
}

func TestCancelRefundsStakesWithoutFee(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	users := []string{"user_a", "user_b", "user_c"}
	match := capturedMatch(t, l, "match_1", users, 25)

	s := NewSettlement(l, NopPersistence{}, DefaultRewardTable())
	results, err := s.Cancel(ctx, match, rankedResults("match_1", users...))
	require.NoError(t, err)

	assert.Equal(t, models.MatchCancelled, match.Status)
	for _, r := range results {
		assert.Zero(t, r.RewardAmount)
	}
	for _, id := range users {
		assert.Equal(t, int64(100), l.Balance(id), "stake returned in full for %s", id)
	}
}
