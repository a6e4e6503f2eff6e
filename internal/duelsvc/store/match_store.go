package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

func (s *MatchStore) SaveMatch(ctx context.Context, match *models.Match) error {
	var endedAt interface{}
	if !match.EndedAt.IsZero() {
		endedAt = match.EndedAt
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO duel_matches (match_id, room_id, server_id, participants, stake_amount, total_escrow, system_fee_rate, system_fee, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (match_id) DO UPDATE
		SET status   = EXCLUDED.status,
		    ended_at = EXCLUDED.ended_at
	`, match.MatchID, match.RoomID, match.ServerID, match.Participants, match.StakeAmount,
		match.TotalEscrow, match.SystemFeeRate, match.SystemFee, match.Status, match.StartedAt, endedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}
	return nil
}

func (s *MatchStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	query := `
		SELECT match_id, room_id, server_id, participants, stake_amount, total_escrow, system_fee_rate, system_fee, status, started_at, COALESCE(ended_at, 'epoch'::timestamptz)
		FROM duel_matches
		WHERE match_id = $1
	`

	match := &models.Match{}
	err := s.db.QueryRow(ctx, query, matchID).Scan(
		&match.MatchID,
		&match.RoomID,
		&match.ServerID,
		&match.Participants,
		&match.StakeAmount,
		&match.TotalEscrow,
		&match.SystemFeeRate,
		&match.SystemFee,
		&match.Status,
		&match.StartedAt,
		&match.EndedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Match not found
		}
		return nil, fmt.Errorf("failed to get match by ID: %w", err)
	}

	return match, nil
}
