package engine

import (
	"context"
	"fmt"
	"sync"
)

// Reward is one settlement credit.
type Reward struct {
	UserID string
	Amount int64
}

// Ledger holds per-match stake captures. Capture is all-or-nothing across
// the participant set; Payout and Refund each run as a single transactional
// unit and retire the match's escrow exactly once.
type Ledger interface {
	// Capture debits amount from every user, in order, into an escrow keyed
	// by matchID. On any failure nothing stays debited and the error carries
	// the first failing participant.
	Capture(ctx context.Context, matchID string, userIDs []string, amount int64) error
	// Payout posts the given credits and marks the escrow settled.
	Payout(ctx context.Context, matchID string, rewards []Reward) error
	// Refund returns every captured stake in full and retires the escrow.
	Refund(ctx context.Context, matchID string) error
}

type capture struct {
	userID string
	amount int64
}

// MemoryLedger is the in-process Ledger used by tests and local runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	captures map[string][]capture
	settled  map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		captures: make(map[string][]capture),
		settled:  make(map[string]bool),
	}
}

func (l *MemoryLedger) SetBalance(userID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = amount
}

func (l *MemoryLedger) Balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *MemoryLedger) Capture(ctx context.Context, matchID string, userIDs []string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.captures[matchID]; exists {
		return fmt.Errorf("escrow already captured for match %s", matchID)
	}
	for _, userID := range userIDs {
		if l.balances[userID] < amount {
			return InsufficientBalance(userID)
		}
	}

	entries := make([]capture, 0, len(userIDs))
	for _, userID := range userIDs {
		l.balances[userID] -= amount
		entries = append(entries, capture{userID: userID, amount: amount})
	}
	l.captures[matchID] = entries
	return nil
}

func (l *MemoryLedger) Payout(ctx context.Context, matchID string, rewards []Reward) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settled[matchID] {
		return fmt.Errorf("escrow for match %s already settled", matchID)
	}
	if _, exists := l.captures[matchID]; !exists {
		return fmt.Errorf("no escrow captured for match %s", matchID)
	}

	for _, r := range rewards {
		l.balances[r.UserID] += r.Amount
	}
	l.settled[matchID] = true
	delete(l.captures, matchID)
	return nil
}

func (l *MemoryLedger) Refund(ctx context.Context, matchID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settled[matchID] {
		return fmt.Errorf("escrow for match %s already settled", matchID)
	}
	entries, exists := l.captures[matchID]
	if !exists {
		return fmt.Errorf("no escrow captured for match %s", matchID)
	}

	for _, e := range entries {
		l.balances[e.userID] += e.amount
	}
	l.settled[matchID] = true
	delete(l.captures, matchID)
	return nil
}
