package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuelStatStreaksAndWinRate(t *testing.T) {
	now := time.Now()
	stat := &DuelStat{ServerID: "frege", UserID: "user_a"}

	stat.Apply(true, now)
	stat.Apply(true, now)
	stat.Apply(true, now)
	assert.Equal(t, 3, stat.Wins)
	assert.Equal(t, 3, stat.CurrentStreak)
	assert.Equal(t, 3, stat.BestStreak)
	assert.Equal(t, 1.0, stat.WinRate)

	stat.Apply(false, now)
	assert.Equal(t, 1, stat.Losses)
	assert.Equal(t, 0, stat.CurrentStreak, "a loss resets the streak")
	assert.Equal(t, 3, stat.BestStreak, "the best streak survives losses")
	assert.Equal(t, 0.75, stat.WinRate)

	stat.Apply(true, now)
	stat.Apply(true, now)
	assert.Equal(t, 2, stat.CurrentStreak)
	assert.Equal(t, 3, stat.BestStreak)
	assert.Equal(t, 0.8333, stat.WinRate, "rate is rounded to four decimals")
}
