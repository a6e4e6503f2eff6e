package engine

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdReady
	cmdStart
	cmdSnapshot
	cmdClose
	cmdExpire
)

type command struct {
	kind        cmdKind
	ctx         context.Context
	userID      string
	displayName string
	ready       bool
	questions   []comm.Question
	reason      string
	cutoff      time.Time
	reply       chan result
}

type result struct {
	snap    *comm.RoomSnapshot
	matchID string
	err     error
}

// Actor is the single writer of one room's state. Every mutating command is
// processed strictly in arrival order by the actor goroutine; commands for
// different rooms run fully independently.
type Actor struct {
	reg     *Registry
	hub     *Hub
	ledger  Ledger
	persist Persistence
	cfg     Config

	room    models.Room
	members []*models.Member // kept in join order; members[0] is earliest

	cmds chan command
	done chan struct{}
}

func newActor(reg *Registry, room models.Room, host models.Member) *Actor {
	a := &Actor{
		reg:     reg,
		hub:     reg.hub,
		ledger:  reg.ledger,
		persist: reg.persist,
		cfg:     reg.cfg,
		room:    room,
		members: []*models.Member{&host},
		cmds:    make(chan command),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor) Join(ctx context.Context, userID, displayName string) (*comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdJoin, userID: userID, displayName: displayName})
	return r.snap, r.err
}

func (a *Actor) Leave(ctx context.Context, userID string) (*comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdLeave, userID: userID})
	return r.snap, r.err
}

func (a *Actor) SetReady(ctx context.Context, userID string, ready bool) (*comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdReady, userID: userID, ready: ready})
	return r.snap, r.err
}

// Start validates host identity and population, captures escrow, and moves
// the room to in_match within one serialized command. The question set must
// be fetched by the caller beforehand so the actor never blocks on it.
func (a *Actor) Start(ctx context.Context, requesterID string, questions []comm.Question) (string, *comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdStart, userID: requesterID, questions: questions})
	return r.matchID, r.snap, r.err
}

func (a *Actor) Snapshot(ctx context.Context) (*comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdSnapshot})
	return r.snap, r.err
}

// Close retires the room after its match reached a terminal state, or on
// explicit registry shutdown.
func (a *Actor) Close(ctx context.Context, reason string) (*comm.RoomSnapshot, error) {
	r := a.do(ctx, command{kind: cmdClose, reason: reason})
	return r.snap, r.err
}

// ExpireIfStale closes the room when it is still open and older than cutoff.
func (a *Actor) ExpireIfStale(ctx context.Context, cutoff time.Time) {
	a.do(ctx, command{kind: cmdExpire, cutoff: cutoff})
}

func (a *Actor) do(ctx context.Context, cmd command) result {
	cmd.ctx = ctx
	cmd.reply = make(chan result, 1)

	select {
	case a.cmds <- cmd:
	case <-a.done:
		return result{err: ErrRoomNotOpen}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}

	select {
	case r := <-cmd.reply:
		return r
	case <-a.done:
		// the room closed while the command was queued; a buffered reply
		// may still have been written just before shutdown
		select {
		case r := <-cmd.reply:
			return r
		default:
			return result{err: ErrRoomNotOpen}
		}
	}
}

func (a *Actor) run() {
	for cmd := range a.cmds {
		if a.handle(cmd) {
			close(a.done)
			return
		}
	}
}

// handle processes one command; returns true once the room is closed.
func (a *Actor) handle(cmd command) bool {
	switch cmd.kind {
	case cmdJoin:
		return a.handleJoin(cmd)
	case cmdLeave:
		return a.handleLeave(cmd)
	case cmdReady:
		return a.handleReady(cmd)
	case cmdStart:
		return a.handleStart(cmd)
	case cmdSnapshot:
		cmd.reply <- result{snap: a.snapshot()}
		return false
	case cmdClose:
		snap := a.closeRoom(cmd.reason)
		cmd.reply <- result{snap: snap}
		return true
	case cmdExpire:
		if a.room.Status == models.RoomOpen && a.room.CreatedAt.Before(cmd.cutoff) {
			log.Infof("closing stale open room %s", a.room.RoomID)
			snap := a.closeRoom("room expired")
			cmd.reply <- result{snap: snap}
			return true
		}
		cmd.reply <- result{}
		return false
	}
	cmd.reply <- result{err: ErrRoomNotFound}
	return false
}

func (a *Actor) handleJoin(cmd command) bool {
	if a.room.Status != models.RoomOpen {
		cmd.reply <- result{err: a.notOpen()}
		return false
	}
	if len(a.members) >= a.room.RoomSize {
		cmd.reply <- result{err: ErrRoomFull}
		return false
	}
	// final authority for the one-open-room-per-user rule
	if err := a.reg.bindUser(cmd.userID, a.room.RoomID); err != nil {
		cmd.reply <- result{err: err}
		return false
	}

	a.members = append(a.members, &models.Member{
		UserID:      cmd.userID,
		DisplayName: cmd.displayName,
		IsReady:     false,
		JoinedAt:    time.Now(),
	})
	a.touch()

	snap := a.snapshot()
	a.persistAsync(snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeRoomUpdate, snap)
	cmd.reply <- result{snap: snap}
	return false
}

func (a *Actor) handleLeave(cmd command) bool {
	if a.room.Status != models.RoomOpen {
		cmd.reply <- result{err: a.notOpen()}
		return false
	}
	idx := a.memberIndex(cmd.userID)
	if idx < 0 {
		cmd.reply <- result{err: ErrNotMember}
		return false
	}

	a.members = append(a.members[:idx], a.members[idx+1:]...)
	a.reg.releaseUser(cmd.userID, a.room.RoomID)

	if len(a.members) == 0 {
		snap := a.closeRoom("room emptied")
		cmd.reply <- result{snap: snap}
		return true
	}

	// a room must never be left without a host while members remain
	if cmd.userID == a.room.CreatedBy {
		a.room.CreatedBy = a.members[0].UserID
		log.Infof("room %s host left, reassigned to %s", a.room.RoomID, a.room.CreatedBy)
	}
	a.touch()

	snap := a.snapshot()
	a.persistAsync(snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeRoomUpdate, snap)
	cmd.reply <- result{snap: snap}
	return false
}

func (a *Actor) handleReady(cmd command) bool {
	if a.room.Status != models.RoomOpen {
		cmd.reply <- result{err: a.notOpen()}
		return false
	}
	idx := a.memberIndex(cmd.userID)
	if idx < 0 {
		cmd.reply <- result{err: ErrNotMember}
		return false
	}

	m := a.members[idx]
	if m.IsReady == cmd.ready {
		// idempotent no-op, nothing to broadcast
		cmd.reply <- result{snap: a.snapshot()}
		return false
	}
	m.IsReady = cmd.ready
	a.touch()

	snap := a.snapshot()
	a.persistAsync(snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeRoomUpdate, snap)
	cmd.reply <- result{snap: snap}
	return false
}

func (a *Actor) handleStart(cmd command) bool {
	if a.room.Status != models.RoomOpen {
		cmd.reply <- result{err: a.notOpen()}
		return false
	}
	if cmd.userID != a.room.CreatedBy {
		cmd.reply <- result{err: ErrNotHost}
		return false
	}
	if len(a.members) < 2 {
		cmd.reply <- result{err: ErrInsufficientPlayers}
		return false
	}
	if len(cmd.questions) < a.cfg.QuestionsPerMatch {
		cmd.reply <- result{err: ErrNotEnoughQuestions}
		return false
	}

	a.room.Status = models.RoomStarting

	participants := make([]string, len(a.members))
	membersSnap := make([]models.Member, len(a.members))
	for i, m := range a.members {
		participants[i] = m.UserID
		membersSnap[i] = *m
	}

	totalEscrow := a.room.StakeAmount * int64(len(participants))
	match := &models.Match{
		MatchID:       newID("match"),
		RoomID:        a.room.RoomID,
		ServerID:      a.room.ServerID,
		Participants:  participants,
		StakeAmount:   a.room.StakeAmount,
		TotalEscrow:   totalEscrow,
		SystemFeeRate: a.cfg.SystemFeeRate,
		SystemFee:     int64(math.Floor(float64(totalEscrow) * a.cfg.SystemFeeRate)),
		Status:        models.MatchOngoing,
		StartedAt:     time.Now(),
	}

	if err := a.ledger.Capture(cmd.ctx, match.MatchID, participants, a.room.StakeAmount); err != nil {
		// aborted start: the room stays open and the failing participant is
		// reported to the host; nobody is removed
		a.room.Status = models.RoomOpen
		cmd.reply <- result{err: err}
		return false
	}

	a.room.Status = models.RoomInMatch
	a.touch()

	snap := a.snapshot()
	a.persistAsync(snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeRoomUpdate, snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeMatchStarted, comm.MatchStarted{MatchID: match.MatchID})
	a.reg.matchStarted(match, membersSnap, cmd.questions)

	cmd.reply <- result{snap: snap, matchID: match.MatchID}
	return false
}

func (a *Actor) closeRoom(reason string) *comm.RoomSnapshot {
	memberIDs := make([]string, len(a.members))
	for i, m := range a.members {
		memberIDs[i] = m.UserID
	}
	a.room.Status = models.RoomClosed
	a.members = nil
	a.touch()

	a.reg.roomClosed(a.room.RoomID, memberIDs)

	snap := a.snapshot()
	a.persistAsync(snap)
	a.hub.Broadcast(a.room.RoomID, comm.TypeRoomClosed, comm.RoomClosed{RoomID: a.room.RoomID, Reason: reason})
	a.hub.DropKey(a.room.RoomID)
	return snap
}

func (a *Actor) notOpen() error {
	if a.room.Status == models.RoomClosed {
		return ErrRoomNotOpen
	}
	return ErrAlreadyStarted
}

func (a *Actor) memberIndex(userID string) int {
	for i, m := range a.members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

func (a *Actor) touch() {
	a.room.UpdatedAt = time.Now()
}

func (a *Actor) snapshot() *comm.RoomSnapshot {
	members := make([]models.Member, len(a.members))
	for i, m := range a.members {
		members[i] = *m
	}
	return &comm.RoomSnapshot{Room: a.room, Members: members}
}

// persistAsync writes the durable room record off the command path; actor
// state stays authoritative so a slow database never stalls the room.
func (a *Actor) persistAsync(snap *comm.RoomSnapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.persist.SaveRoom(ctx, snap.Room, snap.Members); err != nil {
			log.Errorf("unable to persist room %s: %v", snap.Room.RoomID, err)
		}
	}()
}
