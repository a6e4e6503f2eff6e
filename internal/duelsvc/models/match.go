package models

import "time"

type MatchStatus string

const (
	MatchOngoing   MatchStatus = "ongoing"
	MatchFinished  MatchStatus = "finished"
	MatchCancelled MatchStatus = "cancelled"
	// MatchFlagged marks a match whose settlement violated an internal
	// invariant; it is held for manual reconciliation, never auto-settled.
	MatchFlagged MatchStatus = "flagged"
)

// Match is immutable after start except for Status and EndedAt.
// Participants is the member snapshot frozen at the start transition.
type Match struct {
	MatchID       string      `json:"match_id"`
	RoomID        string      `json:"room_id"`
	ServerID      string      `json:"server_id"`
	Participants  []string    `json:"participants"`
	StakeAmount   int64       `json:"stake_amount"`
	TotalEscrow   int64       `json:"total_escrow"`
	SystemFeeRate float64     `json:"system_fee_rate"`
	SystemFee     int64       `json:"system_fee"`
	Status        MatchStatus `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       time.Time   `json:"ended_at,omitempty"`
}

type MatchResult struct {
	MatchID      string    `json:"match_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	CorrectCount int       `json:"correct_count"`
	TotalTimeMs  int64     `json:"total_time_ms"`
	RankPosition int       `json:"rank_position"`
	RewardAmount int64     `json:"reward_amount"`
	SubmittedAt  time.Time `json:"submitted_at,omitempty"` // zero when the player never submitted
}
