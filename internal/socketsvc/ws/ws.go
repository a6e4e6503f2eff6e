package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
	natstransport "github.com/korfarm/duel-services/internal/nats"
	"github.com/korfarm/duel-services/internal/socketsvc/broker"
)

// Ws is the socket edge. It owns the live connections and forwards every
// client command to the duel service over NATS, tagged with the socket id so
// replies find their way back.
type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case comm.TypeInit,
		comm.TypeRoomJoin,
		comm.TypeRoomReady,
		comm.TypeRoomStart,
		comm.TypeRoomLeave,
		comm.TypeAnswer,
		comm.TypeReconnect:
		s.forward(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	if err := s.Broker.Publish(natstransport.TopicCommand, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", natstransport.TopicCommand, err)
		return
	}

	log.Debugf("Forwarded %s from socket %s", msg.Type, socketId)
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

// HandleDisconnect drops the connection and tells the duel service, which
// owns the presence grace period for the user behind this socket.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)

	bytes, err := comm.Envelope(comm.TypeConnClosed, comm.ConnClosed{SocketID: socketId}, socketId)
	if err != nil {
		log.Errorf("Failed to marshal disconnect event: %v", err)
		return
	}
	if err := s.Broker.Publish(natstransport.TopicCommand, bytes); err != nil {
		log.Errorf("Failed to publish disconnect for socket %s: %v", socketId, err)
	}
}
