package engine

import "errors"

// Error is a coded engine error. Room-state errors are recoverable and are
// reported to the originating caller only; SETTLEMENT_INCONSISTENCY is fatal
// for the match and flags it for manual reconciliation.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"` // offending participant for INSUFFICIENT_BALANCE
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrRoomFull            = &Error{Code: "ROOM_FULL", Message: "room is at capacity"}
	ErrAlreadyMember       = &Error{Code: "ALREADY_MEMBER", Message: "user is already in an open room"}
	ErrNotHost             = &Error{Code: "NOT_HOST", Message: "only the host can start the match"}
	ErrInsufficientPlayers = &Error{Code: "INSUFFICIENT_PLAYERS", Message: "at least 2 players are required"}
	ErrRoomNotOpen         = &Error{Code: "ROOM_NOT_OPEN", Message: "room is not open"}
	ErrAlreadyStarted      = &Error{Code: "ALREADY_STARTED", Message: "match already started for this room"}
	ErrRoomNotFound        = &Error{Code: "ROOM_NOT_FOUND", Message: "room not found"}
	ErrNotMember           = &Error{Code: "NOT_MEMBER", Message: "user is not a member of this room"}
	ErrMatchNotFound       = &Error{Code: "MATCH_NOT_FOUND", Message: "match not found"}
	ErrQuestionNotFound    = &Error{Code: "QUESTION_NOT_FOUND", Message: "question does not belong to this match"}
	ErrNotEnoughQuestions  = &Error{Code: "NOT_ENOUGH_QUESTIONS", Message: "question pool is too small for a match"}
	ErrInvalidServer       = &Error{Code: "INVALID_SERVER", Message: "unknown server tier"}
	ErrInvalidRoomName     = &Error{Code: "INVALID_ROOM_NAME", Message: "room name must be 1-50 characters"}
	ErrInvalidStake        = &Error{Code: "INVALID_STAKE", Message: "stake must be between 1 and 50 seeds"}
	ErrUnauthorized        = &Error{Code: "UNAUTHORIZED", Message: "connection is not bound to a user"}

	ErrSettlementInconsistency = &Error{Code: "SETTLEMENT_INCONSISTENCY", Message: "reward sum does not match distributable escrow"}
)

// InsufficientBalance names the first participant who cannot cover the
// stake; ledger implementations return it from Capture.
func InsufficientBalance(userID string) *Error {
	return &Error{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "participant cannot cover the stake",
		UserID:  userID,
	}
}

// CodeOf extracts the engine error code, or INTERNAL for plain errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
