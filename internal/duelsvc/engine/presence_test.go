package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expireRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *expireRecorder) record(userID, roomID string) {
	r.mu.Lock()
	r.calls = append(r.calls, userID+"@"+roomID)
	r.mu.Unlock()
}

func (r *expireRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestPresenceGraceExpiryIssuesSyntheticLeave(t *testing.T) {
	rec := &expireRecorder{}
	p := NewPresence(20 * time.Millisecond)
	p.SetExpireFunc(rec.record)

	p.Bind("s1", "user_a", "Ada")
	p.SetRoom("user_a", "room_1")
	p.Disconnected("s1")

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"user_a@room_1"}, rec.snapshot())

	_, ok := p.RoomOf("user_a")
	assert.False(t, ok)
}

func TestPresenceReconnectCancelsGraceTimer(t *testing.T) {
	rec := &expireRecorder{}
	p := NewPresence(30 * time.Millisecond)
	p.SetExpireFunc(rec.record)

	p.Bind("s1", "user_a", "Ada")
	p.SetRoom("user_a", "room_1")
	p.Disconnected("s1")

	// reconnect on a new socket before the grace runs out
	roomID := p.Bind("s2", "user_a", "Ada")
	assert.Equal(t, "room_1", roomID)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	socketID, ok := p.SocketOf("user_a")
	require.True(t, ok)
	assert.Equal(t, "s2", socketID)
}

func TestPresenceIdleDisconnectDropsSessionImmediately(t *testing.T) {
	rec := &expireRecorder{}
	p := NewPresence(10 * time.Millisecond)
	p.SetExpireFunc(rec.record)

	p.Bind("s1", "user_a", "Ada")
	p.Disconnected("s1")

	_, _, ok := p.UserOf("s1")
	assert.False(t, ok)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "no synthetic leave without a room binding")
}

func TestPresenceLeaveClearsRoomBeforeExpiry(t *testing.T) {
	rec := &expireRecorder{}
	p := NewPresence(20 * time.Millisecond)
	p.SetExpireFunc(rec.record)

	p.Bind("s1", "user_a", "Ada")
	p.SetRoom("user_a", "room_1")
	p.ClearRoom("user_a")
	p.Disconnected("s1")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
