package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DuelStat is a per (server tier, user) win/loss aggregate.
type DuelStat struct {
	ServerID      string    `json:"server_id"`
	UserID        string    `json:"user_id"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	WinRate       float64   `json:"win_rate"` // 4 decimal places
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Apply folds one match outcome into the aggregate. The streak counts
// consecutive wins and resets to zero on any loss; the win rate is kept at
// four decimal places.
func (s *DuelStat) Apply(win bool, now time.Time) {
	if win {
		s.Wins++
		s.CurrentStreak++
		if s.CurrentStreak > s.BestStreak {
			s.BestStreak = s.CurrentStreak
		}
	} else {
		s.Losses++
		s.CurrentStreak = 0
	}

	total := decimal.NewFromInt(int64(s.Wins + s.Losses))
	rate := decimal.NewFromInt(int64(s.Wins)).Div(total).Round(4)
	s.WinRate, _ = rate.Float64()
	s.UpdatedAt = now
}
