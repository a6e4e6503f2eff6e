package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type ResultStore struct {
	db *pgxpool.Pool
}

func NewResultStore(db *pgxpool.Pool) *ResultStore {
	return &ResultStore{db: db}
}

// SaveResults writes the full standings of a match as one atomic set.
func (s *ResultStore) SaveResults(ctx context.Context, matchID string, results []models.MatchResult) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin result save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM duel_results WHERE match_id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("failed to clear match results: %w", err)
	}

	for _, r := range results {
		var submittedAt interface{}
		if !r.SubmittedAt.IsZero() {
			submittedAt = r.SubmittedAt
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO duel_results (match_id, user_id, display_name, correct_count, total_time_ms, rank_position, reward_amount, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, matchID, r.UserID, r.DisplayName, r.CorrectCount, r.TotalTimeMs, r.RankPosition, r.RewardAmount, submittedAt)
		if err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *ResultStore) GetByMatch(ctx context.Context, matchID string) ([]models.MatchResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT match_id, user_id, display_name, correct_count, total_time_ms, rank_position, reward_amount, COALESCE(submitted_at, 'epoch'::timestamptz)
		FROM duel_results
		WHERE match_id = $1
		ORDER BY rank_position
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match results: %w", err)
	}
	defer rows.Close()

	var results []models.MatchResult
	for rows.Next() {
		var r models.MatchResult
		err := rows.Scan(
			&r.MatchID,
			&r.UserID,
			&r.DisplayName,
			&r.CorrectCount,
			&r.TotalTimeMs,
			&r.RankPosition,
			&r.RewardAmount,
			&r.SubmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
