package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type RoomStore struct {
	db *pgxpool.Pool
}

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db}
}

// SaveRoom writes the full room record, replacing the member set so the row
// always mirrors the actor's latest snapshot.
func (s *RoomStore) SaveRoom(ctx context.Context, room models.Room, members []models.Member) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin room save: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO duel_rooms (room_id, server_id, room_name, stake_amount, room_size, created_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (room_id) DO UPDATE
		SET created_by = EXCLUDED.created_by,
		    status     = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`, room.RoomID, room.ServerID, room.RoomName, room.StakeAmount, room.RoomSize,
		room.CreatedBy, room.Status, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM duel_room_members WHERE room_id = $1`, room.RoomID)
	if err != nil {
		return fmt.Errorf("failed to clear room members: %w", err)
	}

	for _, m := range members {
		_, err = tx.Exec(ctx, `
			INSERT INTO duel_room_members (room_id, user_id, display_name, is_ready, joined_at)
			VALUES ($1, $2, $3, $4, $5)
		`, room.RoomID, m.UserID, m.DisplayName, m.IsReady, m.JoinedAt)
		if err != nil {
			return fmt.Errorf("failed to insert room member: %w", err)
		}
	}

	return tx.Commit(ctx)
}
