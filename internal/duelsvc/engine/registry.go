package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

const (
	MinStake = 1
	MaxStake = 50

	minRoomSize = 2
	maxRoomSize = 10

	maxRoomNameLen = 50
)

// Registry owns the live room and match state. It maps room ids to actors,
// match ids to runners, and enforces the one-open-room-per-user rule through
// the byUser index, which every join races through.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	hub     *Hub
	ledger  Ledger
	persist Persistence
	settle  *Settlement

	rooms   map[string]*Actor
	byUser  map[string]string // userID -> open roomID
	runners map[string]*Runner
}

func NewRegistry(cfg Config, hub *Hub, ledger Ledger, persist Persistence) *Registry {
	r := &Registry{
		cfg:     cfg,
		hub:     hub,
		ledger:  ledger,
		persist: persist,
		rooms:   make(map[string]*Actor),
		byUser:  make(map[string]string),
		runners: make(map[string]*Runner),
	}
	r.settle = NewSettlement(ledger, persist, cfg.RewardShares)
	return r
}

// CreateRoom validates the parameters, spawns the room actor, and seats the
// creator as host, already marked ready.
func (r *Registry) CreateRoom(ctx context.Context, serverID, userID, displayName, roomName string, stake int64, size int) (*comm.RoomSnapshot, error) {
	if _, ok := models.TierByID(serverID); !ok {
		return nil, ErrInvalidServer
	}
	if stake < MinStake || stake > MaxStake {
		return nil, ErrInvalidStake
	}
	if size < minRoomSize {
		size = minRoomSize
	}
	if size > maxRoomSize {
		size = maxRoomSize
	}
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		roomName = displayName + "'s room"
	}
	if utf8.RuneCountInString(roomName) > maxRoomNameLen {
		return nil, ErrInvalidRoomName
	}

	now := time.Now()
	room := models.Room{
		RoomID:      newID("room"),
		ServerID:    serverID,
		RoomName:    roomName,
		StakeAmount: stake,
		RoomSize:    size,
		CreatedBy:   userID,
		Status:      models.RoomOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	host := models.Member{
		UserID:      userID,
		DisplayName: displayName,
		IsReady:     true,
		JoinedAt:    now,
	}

	r.mu.Lock()
	if _, busy := r.byUser[userID]; busy {
		r.mu.Unlock()
		return nil, ErrAlreadyMember
	}
	r.byUser[userID] = room.RoomID
	actor := newActor(r, room, host)
	r.rooms[room.RoomID] = actor
	r.mu.Unlock()

	log.Infof("room %s created on server %s by %s (stake %d, size %d)", room.RoomID, serverID, userID, stake, size)

	snap, err := actor.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.persist.SaveRoom(pctx, snap.Room, snap.Members); err != nil {
			log.Errorf("unable to persist room %s: %v", snap.Room.RoomID, err)
		}
	}()
	return snap, nil
}

func (r *Registry) Room(roomID string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actor, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return actor, nil
}

// OpenRoomOf returns the id of the room the user currently occupies, or ""
// when the user is free. The byUser index is the authority here; it covers
// joins made through any surface, with or without a live socket.
func (r *Registry) OpenRoomOf(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

func (r *Registry) Runner(matchID string) (*Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return runner, nil
}

// ListRooms returns the open rooms of one server, newest first.
func (r *Registry) ListRooms(ctx context.Context, serverID string) []comm.RoomSummary {
	r.mu.RLock()
	actors := make([]*Actor, 0, len(r.rooms))
	for _, a := range r.rooms {
		actors = append(actors, a)
	}
	r.mu.RUnlock()

	summaries := make([]comm.RoomSummary, 0, len(actors))
	for _, a := range actors {
		snap, err := a.Snapshot(ctx)
		if err != nil {
			continue
		}
		if snap.Room.ServerID != serverID || snap.Room.Status != models.RoomOpen {
			continue
		}
		summaries = append(summaries, comm.RoomSummary{Room: snap.Room, MemberCount: len(snap.Members)})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Room.CreatedAt.After(summaries[j].Room.CreatedAt)
	})
	return summaries
}

// bindUser claims the user's single open-room slot. Called from room actors
// while they process a join; the registry lock is the final race authority
// when two joins target different rooms at once.
func (r *Registry) bindUser(userID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.byUser[userID]; busy {
		return ErrAlreadyMember
	}
	r.byUser[userID] = roomID
	return nil
}

func (r *Registry) releaseUser(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] == roomID {
		delete(r.byUser, userID)
	}
}

// matchStarted runs inside the starting actor's command. It spawns the
// runner, moves the room's subscribers onto the match channel, and pushes
// the question set with the answers stripped.
func (r *Registry) matchStarted(match *models.Match, members []models.Member, questions []comm.Question) {
	runner := NewRunner(match, members, questions, r.cfg.SessionTimeout, r.finishMatch)

	r.mu.Lock()
	r.runners[match.MatchID] = runner
	r.mu.Unlock()

	r.hub.Adopt(match.RoomID, match.MatchID)
	r.hub.Broadcast(match.MatchID, comm.TypeQuestions, comm.MatchQuestions{
		MatchID:        match.MatchID,
		Questions:      questions,
		SessionDeadSec: int(r.cfg.SessionTimeout.Seconds()),
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.persist.SaveMatch(ctx, match); err != nil {
			log.Errorf("unable to persist match %s: %v", match.MatchID, err)
		}
	}()

	log.Infof("match %s started in room %s with %d players", match.MatchID, match.RoomID, len(members))
}

// finishMatch is the runner's single exit path. Settlement runs first, the
// final standings go out to the match channel, then the room is retired.
func (r *Registry) finishMatch(match *models.Match, results []models.MatchResult, cancelled bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	if cancelled {
		results, err = r.settle.Cancel(ctx, match, results)
	} else {
		results, err = r.settle.Settle(ctx, match, results)
	}
	if err != nil {
		log.Errorf("settlement for match %s ended in status %s: %v", match.MatchID, match.Status, err)
	}

	views := make([]comm.ResultView, len(results))
	for i, res := range results {
		views[i] = comm.ResultView{
			UserID:       res.UserID,
			DisplayName:  res.DisplayName,
			CorrectCount: res.CorrectCount,
			TotalTimeMs:  res.TotalTimeMs,
			RankPosition: res.RankPosition,
			RewardAmount: res.RewardAmount,
		}
	}
	r.hub.Broadcast(match.MatchID, comm.TypeMatchFinish, comm.MatchResultDetail{
		MatchID:     match.MatchID,
		ServerID:    match.ServerID,
		RoomID:      match.RoomID,
		Status:      string(match.Status),
		Results:     views,
		TotalEscrow: match.TotalEscrow,
		SystemFee:   match.SystemFee,
	})

	r.mu.Lock()
	delete(r.runners, match.MatchID)
	actor := r.rooms[match.RoomID]
	r.mu.Unlock()

	if actor != nil {
		if _, err := actor.Close(ctx, "match "+string(match.Status)); err != nil {
			log.Errorf("unable to close room %s after match %s: %v", match.RoomID, match.MatchID, err)
		}
	}
	r.hub.DropKey(match.MatchID)

	log.Infof("match %s finished with status %s", match.MatchID, match.Status)
}

// roomClosed is called by an actor as it transitions to closed. It drops the
// actor from the index and frees every remaining member's open-room slot.
func (r *Registry) roomClosed(roomID string, memberIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
	for _, userID := range memberIDs {
		if r.byUser[userID] == roomID {
			delete(r.byUser, userID)
		}
	}
}

// CleanupStaleRooms closes rooms that stayed open past the configured age.
// Wired to a ticker in the service main.
func (r *Registry) CleanupStaleRooms(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.StaleRoomAfter)

	r.mu.RLock()
	actors := make([]*Actor, 0, len(r.rooms))
	for _, a := range r.rooms {
		actors = append(actors, a)
	}
	r.mu.RUnlock()

	for _, a := range actors {
		a.ExpireIfStale(ctx, cutoff)
	}
}
