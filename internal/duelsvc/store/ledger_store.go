package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/korfarm/duel-services/internal/duelsvc/engine"
)

// LedgerStore is the durable escrow ledger. Balances are dr/cr rows so a
// user's spendable amount is always derivable from the journal; escrows
// track each match's captured stakes through locked, settled or refunded.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

// Capture debits the stake from every participant in one transaction. Each
// user's journal is serialized with an advisory lock so concurrent captures
// cannot both pass the balance check.
func (s *LedgerStore) Capture(ctx context.Context, matchID string, userIDs []string, amount int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin capture: %w", err)
	}
	defer tx.Rollback(ctx)

	stake := decimal.NewFromInt(amount)
	for _, userID := range userIDs {
		_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
		if err != nil {
			return fmt.Errorf("failed to lock user journal: %w", err)
		}

		var totalDr, totalCr decimal.Decimal
		err = tx.QueryRow(ctx, `
			SELECT
				COALESCE(SUM(dr), 0),
				COALESCE(SUM(cr), 0)
			FROM balances
			WHERE user_id = $1 AND status = 'completed'
		`, userID).Scan(&totalDr, &totalCr)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		if totalDr.Sub(totalCr).LessThan(stake) {
			return engine.InsufficientBalance(userID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO balances (user_id, dr, cr, status, remark)
			VALUES ($1, 0, $2, 'completed', $3)
		`, userID, stake, "stake capture "+matchID)
		if err != nil {
			return fmt.Errorf("failed to debit stake: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO escrows (match_id, user_id, amount, status)
			VALUES ($1, $2, $3, 'locked')
		`, matchID, userID, stake)
		if err != nil {
			return fmt.Errorf("failed to lock escrow: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Payout flips the match escrow to settled and posts the reward credits in
// the same transaction. The status flip claims the escrow, so a duplicate
// payout or a payout after a refund finds no locked rows and fails.
func (s *LedgerStore) Payout(ctx context.Context, matchID string, rewards []engine.Reward) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin payout: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE escrows SET status = 'settled', updated_at = now()
		WHERE match_id = $1 AND status = 'locked'
	`, matchID)
	if err != nil {
		return fmt.Errorf("failed to settle escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no locked escrow for match %s", matchID)
	}

	for _, r := range rewards {
		_, err = tx.Exec(ctx, `
			INSERT INTO balances (user_id, dr, cr, status, remark)
			VALUES ($1, $2, 0, 'completed', $3)
		`, r.UserID, decimal.NewFromInt(r.Amount), "match reward "+matchID)
		if err != nil {
			return fmt.Errorf("failed to credit reward: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Refund returns every locked stake of the match in full.
func (s *LedgerStore) Refund(ctx context.Context, matchID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT user_id, amount FROM escrows
		WHERE match_id = $1 AND status = 'locked'
		FOR UPDATE
	`, matchID)
	if err != nil {
		return fmt.Errorf("failed to read escrow: %w", err)
	}

	type entry struct {
		userID string
		amount decimal.Decimal
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.userID, &e.amount); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan escrow row: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read escrow: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no locked escrow for match %s", matchID)
	}

	for _, e := range entries {
		_, err = tx.Exec(ctx, `
			INSERT INTO balances (user_id, dr, cr, status, remark)
			VALUES ($1, $2, 0, 'completed', $3)
		`, e.userID, e.amount, "stake refund "+matchID)
		if err != nil {
			return fmt.Errorf("failed to credit refund: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE escrows SET status = 'refunded', updated_at = now()
		WHERE match_id = $1 AND status = 'locked'
	`, matchID)
	if err != nil {
		return fmt.Errorf("failed to retire escrow: %w", err)
	}

	return tx.Commit(ctx)
}
