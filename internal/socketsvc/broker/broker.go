package broker

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
)

type Broker struct {
	Conn          *nats.Conn
	GetConnection func(string) (*websocket.Conn, bool)
}

func NewBroker(conn *nats.Conn, fncGetConnection func(string) (*websocket.Conn, bool)) *Broker {
	return &Broker{
		Conn:          conn,
		GetConnection: fncGetConnection,
	}
}

// consume message from duel service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to duel service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receives push envelopes from the duel service and relays
// each one to the socket it is addressed to.
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	err := json.Unmarshal(msgNats.Data, &message)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	if message.SocketId == "" {
		log.Warnf("gateway message %s without socket id, dropping", message.Type)
		return
	}

	b.sendMessage(message)
}

// send socket message to the web client
func (b *Broker) sendMessage(m *comm.WSMessage) {
	socketId := m.SocketId
	conn, ok := b.GetConnection(socketId)
	if !ok {
		log.Debugf("socket %s gone, dropping %s", socketId, m.Type)
		return
	}

	// the socket id is backend routing detail, strip it before the client
	out := comm.WSMessage{Type: m.Type, Payload: m.Payload}
	if err := conn.WriteJSON(out); err != nil {
		log.Errorf("Error writing %s to socket %s: %s", m.Type, socketId, err)
	}
}
