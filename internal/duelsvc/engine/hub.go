package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
)

// Publisher is the push side of the gateway transport. NATS in production,
// a capture fake in tests.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Hub fans authoritative snapshots out to every socket subscribed to a room
// or match key. Pushes are fire-and-forget: a slow or gone subscriber never
// stalls the actor that emitted the event.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]map[string]struct{} // key -> socketIds
	pub   Publisher
	topic string
}

func NewHub(pub Publisher, topic string) *Hub {
	return &Hub{
		subs:  make(map[string]map[string]struct{}),
		pub:   pub,
		topic: topic,
	}
}

func (h *Hub) Subscribe(key, socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[string]struct{})
		h.subs[key] = set
	}
	set[socketID] = struct{}{}
}

func (h *Hub) Unsubscribe(key, socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[key]; ok {
		delete(set, socketID)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// DropSocket removes a disconnected socket from every subscription.
func (h *Hub) DropSocket(socketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, set := range h.subs {
		delete(set, socketID)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// Adopt moves a subscriber set to a new key. Used at the start transition to
// carry room subscribers over to the match channel.
func (h *Hub) Adopt(fromKey, toKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[fromKey]
	if !ok {
		return
	}
	delete(h.subs, fromKey)
	dst, ok := h.subs[toKey]
	if !ok {
		h.subs[toKey] = set
		return
	}
	for socketID := range set {
		dst[socketID] = struct{}{}
	}
}

// DropKey retires a room or match channel entirely.
func (h *Hub) DropKey(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, key)
}

func (h *Hub) Sockets(key string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[key]
	sockets := make([]string, 0, len(set))
	for socketID := range set {
		sockets = append(sockets, socketID)
	}
	return sockets
}

// Send pushes one envelope to a single socket.
func (h *Hub) Send(socketID, msgType string, payload interface{}) {
	data, err := comm.Envelope(msgType, payload, socketID)
	if err != nil {
		log.Errorf("unable to marshal %s envelope for socket %s: %v", msgType, socketID, err)
		return
	}
	if err := h.pub.Publish(h.topic, data); err != nil {
		log.Errorf("Error publishing %s to topic %s: %s", msgType, h.topic, err)
	}
}

// Broadcast pushes one envelope to every current subscriber of the key.
func (h *Hub) Broadcast(key, msgType string, payload interface{}) {
	for _, socketID := range h.Sockets(key) {
		h.Send(socketID, msgType, payload)
	}
}
