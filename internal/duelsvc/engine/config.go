package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

const QuestionsPerMatch = 10

// Config carries the engine tunables. Everything comes from env with
// defaults, same as the rest of the service configuration.
type Config struct {
	SystemFeeRate     float64
	SessionTimeout    time.Duration
	PresenceGrace     time.Duration
	StaleRoomAfter    time.Duration
	QuestionsPerMatch int
	RewardShares      RewardTable
}

func DefaultConfig() Config {
	return Config{
		SystemFeeRate:     0.05,
		SessionTimeout:    300 * time.Second,
		PresenceGrace:     30 * time.Second,
		StaleRoomAfter:    30 * time.Minute,
		QuestionsPerMatch: QuestionsPerMatch,
		RewardShares:      DefaultRewardTable(),
	}
}

func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DUEL_FEE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate < 0 || rate >= 1 {
			log.Fatalf("Invalid DUEL_FEE_RATE value: %s", v)
		}
		cfg.SystemFeeRate = rate
	}
	if v := os.Getenv("DUEL_SESSION_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			log.Fatalf("Invalid DUEL_SESSION_SEC value: %s", v)
		}
		cfg.SessionTimeout = time.Duration(sec) * time.Second
	}
	if v := os.Getenv("DUEL_GRACE_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			log.Fatalf("Invalid DUEL_GRACE_SEC value: %s", v)
		}
		cfg.PresenceGrace = time.Duration(sec) * time.Second
	}
	if v := os.Getenv("DUEL_STALE_ROOM_MIN"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min <= 0 {
			log.Fatalf("Invalid DUEL_STALE_ROOM_MIN value: %s", v)
		}
		cfg.StaleRoomAfter = time.Duration(min) * time.Minute
	}
	if v := os.Getenv("DUEL_REWARD_SHARES"); v != "" {
		table, err := ParseRewardTable(v)
		if err != nil {
			log.Fatalf("Invalid DUEL_REWARD_SHARES value: %v", err)
		}
		cfg.RewardShares = table
	}

	return cfg
}

// RewardTable maps participant count to percent shares per rank position.
// Row i holds the share of rank i+1; each row sums to 100.
type RewardTable map[int][]int

func DefaultRewardTable() RewardTable {
	return RewardTable{
		2:  {100, 0},
		3:  {70, 30, 0},
		4:  {60, 30, 10, 0},
		5:  {50, 30, 15, 5, 0},
		6:  {50, 25, 15, 10, 0, 0},
		7:  {45, 25, 15, 10, 5, 0, 0},
		8:  {40, 25, 15, 10, 5, 5, 0, 0},
		9:  {40, 25, 15, 10, 5, 3, 2, 0, 0},
		10: {40, 22, 15, 10, 6, 4, 2, 1, 0, 0},
	}
}

func ParseRewardTable(raw string) (RewardTable, error) {
	var parsed map[string][]int
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("reward table is not valid JSON: %w", err)
	}

	table := RewardTable{}
	for key, row := range parsed {
		count, err := strconv.Atoi(key)
		if err != nil || count < 2 {
			return nil, fmt.Errorf("invalid participant count %q", key)
		}
		if len(row) != count {
			return nil, fmt.Errorf("row for %d participants has %d entries", count, len(row))
		}
		sum := 0
		for _, pct := range row {
			if pct < 0 {
				return nil, fmt.Errorf("negative share in row for %d participants", count)
			}
			sum += pct
		}
		if sum != 100 {
			return nil, fmt.Errorf("row for %d participants sums to %d, want 100", count, sum)
		}
		table[count] = row
	}
	return table, nil
}

// Shares splits the distributable pool across ranks. The integer rounding
// remainder goes entirely to rank 1 so that sum(shares) == distributable.
// Counts missing from the table fall back to winner-take-all.
func (t RewardTable) Shares(count int, distributable int64) []int64 {
	shares := make([]int64, count)
	row, ok := t[count]
	if !ok {
		shares[0] = distributable
		return shares
	}

	var sum int64
	for i, pct := range row {
		shares[i] = distributable * int64(pct) / 100
		sum += shares[i]
	}
	shares[0] += distributable - sum
	return shares
}
