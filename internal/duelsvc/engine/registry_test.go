package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

func newTestEngine(cfg Config) (*Registry, *MemoryLedger, *capturePublisher) {
	pub := &capturePublisher{}
	hub := NewHub(pub, "duel.gateway")
	ledger := NewMemoryLedger()
	reg := NewRegistry(cfg, hub, ledger, NopPersistence{})
	return reg, ledger, pub
}

func mustCreateRoom(t *testing.T, reg *Registry, userID string, stake int64, size int) *comm.RoomSnapshot {
	t.Helper()
	snap, err := reg.CreateRoom(context.Background(), "frege", userID, userID, "", stake, size)
	require.NoError(t, err)
	return snap
}

func errCode(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func TestCreateRoomValidation(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()

	_, err := reg.CreateRoom(ctx, "plato", "user_a", "Ada", "my room", 10, 4)
	assert.Equal(t, ErrInvalidServer, err)

	_, err = reg.CreateRoom(ctx, "frege", "user_a", "Ada", "my room", 0, 4)
	assert.Equal(t, ErrInvalidStake, err)

	_, err = reg.CreateRoom(ctx, "frege", "user_a", "Ada", "my room", 51, 4)
	assert.Equal(t, ErrInvalidStake, err)

	// the name limit counts characters, not bytes
	name := strings.Repeat("공부방 ", 10) + "공부방" // 43 runes, well past 50 bytes
	snap, err := reg.CreateRoom(ctx, "frege", "user_a", "Ada", name, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, name, snap.Room.RoomName)

	_, err = reg.CreateRoom(ctx, "frege", "user_b", "Bob", strings.Repeat("공", 51), 10, 4)
	assert.Equal(t, ErrInvalidRoomName, err)
}

func TestCreateRoomDefaultsAndClamps(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()

	snap, err := reg.CreateRoom(ctx, "frege", "user_a", "Ada", "  ", 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada's room", snap.Room.RoomName)
	assert.Equal(t, 2, snap.Room.RoomSize, "size coerced up to the minimum")

	require.Len(t, snap.Members, 1)
	assert.Equal(t, "user_a", snap.Room.CreatedBy)
	assert.True(t, snap.Members[0].IsReady, "the host starts ready")

	snap2, err := reg.CreateRoom(ctx, "frege", "user_b", "Bob", "big", 10, 99)
	require.NoError(t, err)
	assert.Equal(t, 10, snap2.Room.RoomSize, "size coerced down to the maximum")
}

func TestCreateRoomWhileInAnotherRoomFails(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	mustCreateRoom(t, reg, "user_a", 10, 4)

	_, err := reg.CreateRoom(context.Background(), "frege", "user_a", "Ada", "", 10, 4)
	assert.Equal(t, ErrAlreadyMember, err)
}

func TestJoinUpToCapacityThenRoomFull(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()
	snap := mustCreateRoom(t, reg, "host", 10, 2)

	actor, err := reg.Room(snap.Room.RoomID)
	require.NoError(t, err)

	joined, err := actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)
	assert.Len(t, joined.Members, 2)
	assert.False(t, joined.Members[1].IsReady, "joiners start not ready")

	_, err = actor.Join(ctx, "user_c", "Cee")
	assert.Equal(t, ErrRoomFull, err)

	_, err = actor.Join(ctx, "user_b", "Bob")
	assert.Equal(t, ErrAlreadyMember, err, "rejoining the same room is rejected")
}

func TestConcurrentJoinsOneWinner(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()

	roomA := mustCreateRoom(t, reg, "host_a", 10, 5)
	roomB := mustCreateRoom(t, reg, "host_b", 10, 5)

	actorA, err := reg.Room(roomA.Room.RoomID)
	require.NoError(t, err)
	actorB, err := reg.Room(roomB.Room.RoomID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, outcomes[0] = actorA.Join(ctx, "racer", "Racer")
	}()
	go func() {
		defer wg.Done()
		_, outcomes[1] = actorB.Join(ctx, "racer", "Racer")
	}()
	wg.Wait()

	successes := 0
	for _, err := range outcomes {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, ErrAlreadyMember, err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one of the racing joins may land")
}

func TestConcurrentJoinsForLastSeatOneRoomFull(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()

	snap := mustCreateRoom(t, reg, "host", 10, 3)
	actor, err := reg.Room(snap.Room.RoomID)
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)

	// one seat left; two joins race for it
	var wg sync.WaitGroup
	outcomes := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, outcomes[0] = actor.Join(ctx, "user_c", "Cee")
	}()
	go func() {
		defer wg.Done()
		_, outcomes[1] = actor.Join(ctx, "user_d", "Dee")
	}()
	wg.Wait()

	successes := 0
	for _, err := range outcomes {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, ErrRoomFull, err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one racer gets the last seat")

	got, err := actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Members, 3)
}

func TestOpenRoomOfTracksMembershipAcrossSurfaces(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()

	snap := mustCreateRoom(t, reg, "host", 10, 4)
	roomID := snap.Room.RoomID
	actor, err := reg.Room(roomID)
	require.NoError(t, err)

	// a join that never touched presence still resolves for init resync
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, roomID, reg.OpenRoomOf("user_b"))
	assert.Equal(t, roomID, reg.OpenRoomOf("host"))
	assert.Empty(t, reg.OpenRoomOf("stranger"))

	_, err = actor.Leave(ctx, "user_b")
	require.NoError(t, err)
	assert.Empty(t, reg.OpenRoomOf("user_b"))

	_, err = actor.Leave(ctx, "host")
	require.NoError(t, err)
	assert.Empty(t, reg.OpenRoomOf("host"), "closing the room frees every slot")
}

func TestReadyIsIdempotentAndAdvisory(t *testing.T) {
	reg, ledger, pub := newTestEngine(DefaultConfig())
	ctx := context.Background()
	ledger.SetBalance("host", 100)
	ledger.SetBalance("user_b", 100)
	snap := mustCreateRoom(t, reg, "host", 10, 4)
	roomID := snap.Room.RoomID

	actor, err := reg.Room(roomID)
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)

	reg.hub.Subscribe(roomID, "s1")

	got, err := actor.SetReady(ctx, "user_b", true)
	require.NoError(t, err)
	assert.True(t, got.Members[1].IsReady)
	updates := len(pub.byType(comm.TypeRoomUpdate))

	// same value again changes nothing and broadcasts nothing
	_, err = actor.SetReady(ctx, "user_b", true)
	require.NoError(t, err)
	assert.Len(t, pub.byType(comm.TypeRoomUpdate), updates)

	_, err = actor.SetReady(ctx, "stranger", true)
	assert.Equal(t, ErrNotMember, err)

	// not everyone ready, yet the host can still start
	_, _, err = actor.Start(ctx, "host", testQuestions(10))
	assert.NoError(t, err)
}

func TestStartPreconditions(t *testing.T) {
	reg, ledger, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()
	snap := mustCreateRoom(t, reg, "host", 10, 4)

	actor, err := reg.Room(snap.Room.RoomID)
	require.NoError(t, err)

	_, _, err = actor.Start(ctx, "host", testQuestions(10))
	assert.Equal(t, ErrInsufficientPlayers, err)

	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)

	_, _, err = actor.Start(ctx, "user_b", testQuestions(10))
	assert.Equal(t, ErrNotHost, err)

	_, _, err = actor.Start(ctx, "host", testQuestions(3))
	assert.Equal(t, ErrNotEnoughQuestions, err)

	// ledger holds nothing for either player
	err = func() error {
		_, _, err := actor.Start(ctx, "host", testQuestions(10))
		return err
	}()
	require.Error(t, err)
	assert.Equal(t, "INSUFFICIENT_BALANCE", errCode(err))

	// the aborted start left the room open and balances untouched
	got, err := actor.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoomOpen, got.Room.Status)
	assert.Zero(t, ledger.Balance("host"))
}

func TestStartCapturesEscrowAndSpawnsRunner(t *testing.T) {
	reg, ledger, pub := newTestEngine(DefaultConfig())
	ctx := context.Background()
	ledger.SetBalance("host", 100)
	ledger.SetBalance("user_b", 100)

	snap := mustCreateRoom(t, reg, "host", 30, 4)
	roomID := snap.Room.RoomID
	actor, err := reg.Room(roomID)
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)

	reg.hub.Subscribe(roomID, "s1")
	reg.hub.Subscribe(roomID, "s2")

	matchID, got, err := actor.Start(ctx, "host", testQuestions(10))
	require.NoError(t, err)
	require.NotEmpty(t, matchID)
	assert.Equal(t, models.RoomInMatch, got.Room.Status)

	assert.Equal(t, int64(70), ledger.Balance("host"))
	assert.Equal(t, int64(70), ledger.Balance("user_b"))

	runner, err := reg.Runner(matchID)
	require.NoError(t, err)
	assert.Len(t, runner.Questions(), 10)
	assert.Equal(t, int64(60), runner.Match().TotalEscrow)
	assert.Equal(t, int64(3), runner.Match().SystemFee)

	assert.Len(t, pub.byType(comm.TypeMatchStarted), 2, "one matchStarted per subscriber")
	assert.Len(t, pub.byType(comm.TypeQuestions), 2, "question sets follow on the match channel")

	// joins and second starts are rejected once the match is running
	_, err = actor.Join(ctx, "user_c", "Cee")
	assert.Equal(t, ErrAlreadyStarted, err)
	_, _, err = actor.Start(ctx, "host", testQuestions(10))
	assert.Equal(t, ErrAlreadyStarted, err)
	_, err = actor.Leave(ctx, "user_b")
	assert.Equal(t, ErrAlreadyStarted, err, "membership persists through the match")
}

func TestLeaveTransfersHostToEarliestJoined(t *testing.T) {
	reg, _, _ := newTestEngine(DefaultConfig())
	ctx := context.Background()
	snap := mustCreateRoom(t, reg, "host", 10, 4)

	actor, err := reg.Room(snap.Room.RoomID)
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_c", "Cee")
	require.NoError(t, err)

	got, err := actor.Leave(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, "user_b", got.Room.CreatedBy)
	assert.Len(t, got.Members, 2)

	_, err = actor.Leave(ctx, "stranger")
	assert.Equal(t, ErrNotMember, err)
}

func TestLastLeaveClosesRoomAndFreesUsers(t *testing.T) {
	reg, _, pub := newTestEngine(DefaultConfig())
	ctx := context.Background()
	snap := mustCreateRoom(t, reg, "host", 10, 4)
	roomID := snap.Room.RoomID

	reg.hub.Subscribe(roomID, "s1")

	actor, err := reg.Room(roomID)
	require.NoError(t, err)
	got, err := actor.Leave(ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, models.RoomClosed, got.Room.Status)

	_, err = reg.Room(roomID)
	assert.Equal(t, ErrRoomNotFound, err)
	assert.NotEmpty(t, pub.byType(comm.TypeRoomClosed))

	// the open-room slot is free again
	mustCreateRoom(t, reg, "host", 10, 4)
}

func TestStaleOpenRoomIsExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleRoomAfter = -time.Second // everything is already stale
	reg, _, pub := newTestEngine(cfg)

	snap := mustCreateRoom(t, reg, "host", 10, 4)
	reg.hub.Subscribe(snap.Room.RoomID, "s1")

	reg.CleanupStaleRooms(context.Background())

	_, err := reg.Room(snap.Room.RoomID)
	assert.Equal(t, ErrRoomNotFound, err)
	assert.NotEmpty(t, pub.byType(comm.TypeRoomClosed))
}

func TestFullMatchFlowSettlesEscrowAndClosesRoom(t *testing.T) {
	reg, ledger, pub := newTestEngine(DefaultConfig())
	ctx := context.Background()
	ledger.SetBalance("host", 100)
	ledger.SetBalance("user_b", 100)

	snap := mustCreateRoom(t, reg, "host", 50, 2)
	roomID := snap.Room.RoomID
	actor, err := reg.Room(roomID)
	require.NoError(t, err)
	_, err = actor.Join(ctx, "user_b", "Bob")
	require.NoError(t, err)

	reg.hub.Subscribe(roomID, "s_host")
	reg.hub.Subscribe(roomID, "s_b")

	matchID, _, err := actor.Start(ctx, "host", testQuestions(10))
	require.NoError(t, err)

	runner, err := reg.Runner(matchID)
	require.NoError(t, err)

	// host sweeps, user_b blanks; the last submission settles everything
	answerAll(t, runner, "host", 10, 1000)
	answerAll(t, runner, "user_b", 0, 1000)

	// escrow 100, fee 5, two-player split pays the winner everything
	assert.Equal(t, int64(145), ledger.Balance("host"))
	assert.Equal(t, int64(50), ledger.Balance("user_b"))

	_, err = reg.Runner(matchID)
	assert.Equal(t, ErrMatchNotFound, err)
	_, err = reg.Room(roomID)
	assert.Equal(t, ErrRoomNotFound, err)

	finish := pub.byType(comm.TypeMatchFinish)
	require.Len(t, finish, 2, "final standings reach both subscribers")

	var detail comm.MatchResultDetail
	require.NoError(t, json.Unmarshal(finish[0].Payload, &detail))
	assert.Equal(t, string(models.MatchFinished), detail.Status)
	require.Len(t, detail.Results, 2)
	assert.Equal(t, "host", detail.Results[0].UserID)
	assert.Equal(t, 1, detail.Results[0].RankPosition)
	assert.Equal(t, int64(95), detail.Results[0].RewardAmount)

	// both players can open fresh rooms afterwards
	mustCreateRoom(t, reg, "host", 10, 2)
	mustCreateRoom(t, reg, "user_b", 10, 2)
}
