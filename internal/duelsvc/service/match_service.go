package service

import (
	"context"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/engine"
	"github.com/korfarm/duel-services/internal/duelsvc/store"
)

type MatchService struct {
	matches *store.MatchStore
	results *store.ResultStore
}

func NewMatchService(matches *store.MatchStore, results *store.ResultStore) *MatchService {
	return &MatchService{matches: matches, results: results}
}

// Results serves the persisted standings of a finished match.
func (s *MatchService) Results(ctx context.Context, matchID string) (*comm.MatchResultDetail, error) {
	match, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, engine.ErrMatchNotFound
	}

	results, err := s.results.GetByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	views := make([]comm.ResultView, len(results))
	for i, r := range results {
		views[i] = comm.ResultView{
			UserID:       r.UserID,
			DisplayName:  r.DisplayName,
			CorrectCount: r.CorrectCount,
			TotalTimeMs:  r.TotalTimeMs,
			RankPosition: r.RankPosition,
			RewardAmount: r.RewardAmount,
		}
	}

	return &comm.MatchResultDetail{
		MatchID:     match.MatchID,
		ServerID:    match.ServerID,
		RoomID:      match.RoomID,
		Status:      string(match.Status),
		Results:     views,
		TotalEscrow: match.TotalEscrow,
		SystemFee:   match.SystemFee,
	}, nil
}
