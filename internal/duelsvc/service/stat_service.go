package service

import (
	"context"
	"time"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
	"github.com/korfarm/duel-services/internal/duelsvc/store"
)

type StatService struct {
	store *store.StatStore
}

func NewStatService(store *store.StatStore) *StatService {
	return &StatService{store: store}
}

// ApplyOutcome folds one match outcome into the user's per-tier aggregate.
func (s *StatService) ApplyOutcome(ctx context.Context, serverID, userID string, win bool) error {
	stat, err := s.store.Get(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if stat == nil {
		stat = &models.DuelStat{ServerID: serverID, UserID: userID}
	}

	stat.Apply(win, time.Now())

	return s.store.Upsert(ctx, stat)
}

// Get returns the user's aggregate for a tier, zero-valued when the user
// has not finished a match there yet.
func (s *StatService) Get(ctx context.Context, serverID, userID string) (*models.DuelStat, error) {
	stat, err := s.store.Get(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		return &models.DuelStat{ServerID: serverID, UserID: userID}, nil
	}
	return stat, nil
}
