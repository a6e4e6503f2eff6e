package models

import "time"

type RoomStatus string

// Room states are monotonic: a room never re-opens once it leaves "open".
const (
	RoomOpen     RoomStatus = "open"
	RoomStarting RoomStatus = "starting"
	RoomInMatch  RoomStatus = "in_match"
	RoomClosed   RoomStatus = "closed"
)

type Room struct {
	RoomID      string     `json:"room_id"`
	ServerID    string     `json:"server_id"`
	RoomName    string     `json:"room_name"`
	StakeAmount int64      `json:"stake_amount"`
	RoomSize    int        `json:"room_size"`
	CreatedBy   string     `json:"created_by"` // host userId
	Status      RoomStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsReady     bool      `json:"is_ready"`
	JoinedAt    time.Time `json:"joined_at"`
}
