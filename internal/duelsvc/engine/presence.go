package engine

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type session struct {
	socketID    string
	userID      string
	displayName string
	roomID      string
	connected   bool
	graceTimer  *time.Timer
}

// Presence maps live connections to users and their current room. A
// disconnect does not remove a member from a room; it only arms a grace
// timer which, on expiry, issues a synthetic leave through the expire func.
type Presence struct {
	mu       sync.Mutex
	bySocket map[string]*session
	byUser   map[string]*session
	grace    time.Duration
	onExpire func(userID, roomID string)
}

func NewPresence(grace time.Duration) *Presence {
	return &Presence{
		bySocket: make(map[string]*session),
		byUser:   make(map[string]*session),
		grace:    grace,
	}
}

// SetExpireFunc wires the synthetic-leave target. Must be set before any
// disconnect can expire.
func (p *Presence) SetExpireFunc(fn func(userID, roomID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExpire = fn
}

// Bind registers a socket under a verified user. A rebind for a user with a
// pending grace timer is a reconnect: the timer is cancelled and the room
// binding survives. Returns the user's current room, if any.
func (p *Presence) Bind(socketID, userID, displayName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byUser[userID]; ok {
		if existing.graceTimer != nil {
			existing.graceTimer.Stop()
			existing.graceTimer = nil
		}
		delete(p.bySocket, existing.socketID)
		existing.socketID = socketID
		existing.connected = true
		if displayName != "" {
			existing.displayName = displayName
		}
		p.bySocket[socketID] = existing
		return existing.roomID
	}

	s := &session{
		socketID:    socketID,
		userID:      userID,
		displayName: displayName,
		connected:   true,
	}
	p.bySocket[socketID] = s
	p.byUser[userID] = s
	return ""
}

func (p *Presence) UserOf(socketID string) (userID, displayName string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, found := p.bySocket[socketID]
	if !found {
		return "", "", false
	}
	return s.userID, s.displayName, true
}

func (p *Presence) RoomOf(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byUser[userID]
	if !ok || s.roomID == "" {
		return "", false
	}
	return s.roomID, true
}

func (p *Presence) SocketOf(userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byUser[userID]
	if !ok || !s.connected {
		return "", false
	}
	return s.socketID, true
}

func (p *Presence) SetRoom(userID, roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byUser[userID]; ok {
		s.roomID = roomID
	}
}

func (p *Presence) ClearRoom(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byUser[userID]; ok {
		s.roomID = ""
	}
}

// Disconnected marks the socket gone. Sessions with a room binding get a
// grace timer before the synthetic leave; idle sessions are dropped at once.
func (p *Presence) Disconnected(socketID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.bySocket[socketID]
	if !ok {
		return
	}
	delete(p.bySocket, socketID)
	s.connected = false

	if s.roomID == "" {
		delete(p.byUser, s.userID)
		return
	}

	userID, roomID := s.userID, s.roomID
	s.graceTimer = time.AfterFunc(p.grace, func() {
		p.expire(userID, roomID)
	})
}

func (p *Presence) expire(userID, roomID string) {
	p.mu.Lock()
	s, ok := p.byUser[userID]
	if !ok || s.connected || s.roomID != roomID {
		// reconnected or moved on in the meantime
		p.mu.Unlock()
		return
	}
	delete(p.byUser, userID)
	fn := p.onExpire
	p.mu.Unlock()

	if fn == nil {
		log.Warnf("presence grace expired for user %s with no expire func wired", userID)
		return
	}
	log.Infof("presence grace expired for user %s, issuing synthetic leave from room %s", userID, roomID)
	fn(userID, roomID)
}
