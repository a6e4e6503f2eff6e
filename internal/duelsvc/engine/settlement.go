package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

// Settlement turns ranked results into ledger movements. Settle and Cancel
// are each applied at most once per match; the ledger enforces that even if
// a caller retries.
type Settlement struct {
	ledger  Ledger
	persist Persistence
	table   RewardTable
}

func NewSettlement(ledger Ledger, persist Persistence, table RewardTable) *Settlement {
	return &Settlement{ledger: ledger, persist: persist, table: table}
}

// Settle computes the reward split, verifies it re-assembles the
// distributable pool exactly, then pays out. The sum check runs before any
// credit is posted; a mismatch flags the match for manual reconciliation and
// leaves the escrow untouched.
func (s *Settlement) Settle(ctx context.Context, match *models.Match, results []models.MatchResult) ([]models.MatchResult, error) {
	distributable := match.TotalEscrow - match.SystemFee
	shares := s.table.Shares(len(results), distributable)

	var sum int64
	valid := true
	for _, share := range shares {
		if share < 0 {
			valid = false
		}
		sum += share
	}
	if !valid || sum != distributable {
		log.Errorf("reward split for match %s sums to %d, want %d, flagging", match.MatchID, sum, distributable)
		s.flag(ctx, match, results)
		return results, ErrSettlementInconsistency
	}

	rewards := make([]Reward, 0, len(results))
	for i := range results {
		results[i].RewardAmount = shares[i]
		if shares[i] > 0 {
			rewards = append(rewards, Reward{UserID: results[i].UserID, Amount: shares[i]})
		}
	}

	if err := s.ledger.Payout(ctx, match.MatchID, rewards); err != nil {
		log.Errorf("payout failed for match %s, flagging: %v", match.MatchID, err)
		s.flag(ctx, match, results)
		return results, err
	}

	match.Status = models.MatchFinished
	match.EndedAt = time.Now()
	s.record(ctx, match, results)

	for _, res := range results {
		if err := s.persist.RecordOutcome(ctx, match.ServerID, res.UserID, res.RankPosition == 1); err != nil {
			log.Errorf("unable to record outcome for user %s in match %s: %v", res.UserID, match.MatchID, err)
		}
	}
	return results, nil
}

// Cancel refunds every captured stake in full. No fee is taken and no win or
// loss is recorded.
func (s *Settlement) Cancel(ctx context.Context, match *models.Match, results []models.MatchResult) ([]models.MatchResult, error) {
	if err := s.ledger.Refund(ctx, match.MatchID); err != nil {
		log.Errorf("refund failed for match %s, flagging: %v", match.MatchID, err)
		s.flag(ctx, match, results)
		return results, err
	}

	match.Status = models.MatchCancelled
	match.EndedAt = time.Now()
	s.record(ctx, match, results)
	return results, nil
}

func (s *Settlement) flag(ctx context.Context, match *models.Match, results []models.MatchResult) {
	match.Status = models.MatchFlagged
	match.EndedAt = time.Now()
	s.record(ctx, match, results)
}

func (s *Settlement) record(ctx context.Context, match *models.Match, results []models.MatchResult) {
	if err := s.persist.SaveMatch(ctx, match); err != nil {
		log.Errorf("unable to persist match %s: %v", match.MatchID, err)
	}
	if err := s.persist.SaveResults(ctx, match, results); err != nil {
		log.Errorf("unable to persist results for match %s: %v", match.MatchID, err)
	}
}
