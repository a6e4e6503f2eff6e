package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

// QuestionProvider supplies a fixed ordered question set per server tier
// plus the answer ids the runner uses as its correctness oracle. The set is
// always fetched before the start command enters the room actor.
type QuestionProvider interface {
	QuestionSet(ctx context.Context, serverID string, n int) ([]comm.Question, error)
}

// Persistence is the durable record behind the in-memory engine state.
// Writes are best-effort from the actors (logged, never blocking a command)
// and mandatory from settlement.
type Persistence interface {
	SaveRoom(ctx context.Context, room models.Room, members []models.Member) error
	SaveMatch(ctx context.Context, match *models.Match) error
	SaveResults(ctx context.Context, match *models.Match, results []models.MatchResult) error
	RecordOutcome(ctx context.Context, serverID, userID string, win bool) error
}

// NopPersistence backs engine tests and ledger-only local runs.
type NopPersistence struct{}

func (NopPersistence) SaveRoom(context.Context, models.Room, []models.Member) error { return nil }
func (NopPersistence) SaveMatch(context.Context, *models.Match) error               { return nil }
func (NopPersistence) SaveResults(context.Context, *models.Match, []models.MatchResult) error {
	return nil
}
func (NopPersistence) RecordOutcome(context.Context, string, string, bool) error { return nil }

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
