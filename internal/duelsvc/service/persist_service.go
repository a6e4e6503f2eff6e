package service

import (
	"context"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
	"github.com/korfarm/duel-services/internal/duelsvc/store"
)

// PersistService is the durable record behind the engine, composing the
// individual stores into the persistence surface the engine expects.
type PersistService struct {
	rooms   *store.RoomStore
	matches *store.MatchStore
	results *store.ResultStore
	stats   *StatService
}

func NewPersistService(rooms *store.RoomStore, matches *store.MatchStore, results *store.ResultStore, stats *StatService) *PersistService {
	return &PersistService{rooms: rooms, matches: matches, results: results, stats: stats}
}

func (s *PersistService) SaveRoom(ctx context.Context, room models.Room, members []models.Member) error {
	return s.rooms.SaveRoom(ctx, room, members)
}

func (s *PersistService) SaveMatch(ctx context.Context, match *models.Match) error {
	return s.matches.SaveMatch(ctx, match)
}

func (s *PersistService) SaveResults(ctx context.Context, match *models.Match, results []models.MatchResult) error {
	return s.results.SaveResults(ctx, match.MatchID, results)
}

func (s *PersistService) RecordOutcome(ctx context.Context, serverID, userID string, win bool) error {
	return s.stats.ApplyOutcome(ctx, serverID, userID, win)
}
