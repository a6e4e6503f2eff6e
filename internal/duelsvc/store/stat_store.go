package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type StatStore struct {
	db *pgxpool.Pool
}

func NewStatStore(db *pgxpool.Pool) *StatStore {
	return &StatStore{db: db}
}

func (s *StatStore) Get(ctx context.Context, serverID, userID string) (*models.DuelStat, error) {
	query := `
		SELECT server_id, user_id, wins, losses, win_rate, current_streak, best_streak, updated_at
		FROM duel_stats
		WHERE server_id = $1 AND user_id = $2
	`

	stat := &models.DuelStat{}
	err := s.db.QueryRow(ctx, query, serverID, userID).Scan(
		&stat.ServerID,
		&stat.UserID,
		&stat.Wins,
		&stat.Losses,
		&stat.WinRate,
		&stat.CurrentStreak,
		&stat.BestStreak,
		&stat.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No stats recorded yet
		}
		return nil, fmt.Errorf("failed to get duel stats: %w", err)
	}

	return stat, nil
}

func (s *StatStore) Upsert(ctx context.Context, stat *models.DuelStat) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO duel_stats (server_id, user_id, wins, losses, win_rate, current_streak, best_streak, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (server_id, user_id) DO UPDATE
		SET wins           = EXCLUDED.wins,
		    losses         = EXCLUDED.losses,
		    win_rate       = EXCLUDED.win_rate,
		    current_streak = EXCLUDED.current_streak,
		    best_streak    = EXCLUDED.best_streak,
		    updated_at     = EXCLUDED.updated_at
	`, stat.ServerID, stat.UserID, stat.Wins, stat.Losses, stat.WinRate,
		stat.CurrentStreak, stat.BestStreak, stat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert duel stats: %w", err)
	}
	return nil
}
