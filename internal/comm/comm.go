package comm

import (
	"encoding/json"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

// WSMessage is the envelope shared by the socket edge and the engine.
// SocketId is attached by the socket service and never leaves the backend.
type WSMessage struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SocketId string          `json:"socketid,omitempty"`
}

// Message types consumed by the engine.
const (
	TypeInit       = "init"
	TypeRoomJoin   = "room.join"
	TypeRoomReady  = "room.ready"
	TypeRoomStart  = "room.start"
	TypeRoomLeave  = "room.leave"
	TypeAnswer     = "match.answer"
	TypeReconnect  = "match.reconnect"
	TypeConnClosed = "conn.closed" // synthetic, published by socketsvc on disconnect
)

// Message types produced by the engine.
const (
	TypeInitResponse = "init-response"
	TypeRoomState    = "room.state"
	TypeRoomUpdate   = "room.update"
	TypeMatchStarted = "room.matchStarted"
	TypeRoomClosed   = "room.closed"
	TypeQuestions    = "match.questions"
	TypeAnswerResult = "match.answerResult"
	TypeMatchFinish  = "match.finish"
	TypeError        = "error"
)

type InitRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type InitResponse struct {
	UserID string        `json:"user_id"`
	Room   *RoomSnapshot `json:"room,omitempty"` // current room, for reconnect resync
}

type RoomRequest struct {
	RoomID string `json:"room_id"`
}

type ReadyRequest struct {
	RoomID string `json:"room_id"`
	Ready  bool   `json:"ready"`
}

type AnswerRequest struct {
	MatchID    string `json:"match_id"`
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
	TimeMs     int64  `json:"time_ms"`
}

type ReconnectRequest struct {
	MatchID string `json:"match_id"`
}

// RoomSnapshot is the authoritative full room state pushed on every
// transition. Clients never derive state from past events alone.
type RoomSnapshot struct {
	Room    models.Room     `json:"room"`
	Members []models.Member `json:"members"`
}

// RoomSummary is the list view for the lobby browser.
type RoomSummary struct {
	Room        models.Room `json:"room"`
	MemberCount int         `json:"member_count"`
}

type MatchStarted struct {
	MatchID string `json:"matchId"`
}

type Choice struct {
	ChoiceID string `json:"choice_id"`
	Text     string `json:"text"`
}

// Question is one quiz item. AnswerID never serializes to clients; the
// engine keeps it for the correctness oracle.
type Question struct {
	QuestionID string   `json:"question_id"`
	Prompt     string   `json:"prompt"`
	Choices    []Choice `json:"choices"`
	AnswerID   string   `json:"-"`
}

type MatchQuestions struct {
	MatchID        string     `json:"match_id"`
	Questions      []Question `json:"questions"`
	SessionDeadSec int        `json:"session_deadline_sec"`
}

type AnswerResult struct {
	QuestionID string `json:"question_id"`
	IsCorrect  bool   `json:"is_correct"`
}

type ResultView struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	CorrectCount int    `json:"correct_count"`
	TotalTimeMs  int64  `json:"total_time_ms"`
	RankPosition int    `json:"rank_position"`
	RewardAmount int64  `json:"reward_amount"`
}

type MatchResultDetail struct {
	MatchID     string       `json:"match_id"`
	ServerID    string       `json:"server_id"`
	RoomID      string       `json:"room_id"`
	Status      string       `json:"status"`
	Results     []ResultView `json:"results"`
	TotalEscrow int64        `json:"total_escrow"`
	SystemFee   int64        `json:"system_fee"`
}

type RoomClosed struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"` // offending participant, when one is known
}

type ConnClosed struct {
	SocketID string `json:"socket_id"`
}

// Envelope marshals a typed payload into the wire envelope.
func Envelope(msgType string, payload interface{}, socketId string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{Type: msgType, Payload: data, SocketId: socketId})
}
