package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/engine"
)

// Broker consumes gateway commands from the socket edge and drives the
// engine. Every reply and error goes back through the hub to the socket the
// command came from; room-wide fanout is the engine's own job.
type Broker struct {
	Conn      *nats.Conn
	Registry  *engine.Registry
	Presence  *engine.Presence
	Hub       *engine.Hub
	Questions engine.QuestionProvider
	Cfg       engine.Config
}

func NewBroker(nc *nats.Conn, registry *engine.Registry, presence *engine.Presence,
	hub *engine.Hub, questions engine.QuestionProvider, cfg engine.Config) *Broker {
	return &Broker{
		Conn:      nc,
		Registry:  registry,
		Presence:  presence,
		Hub:       hub,
		Questions: questions,
		Cfg:       cfg,
	}
}

// handles message coming from socket
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	err := json.Unmarshal(msgNat.Data, &msg)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case comm.TypeInit:
		b.handleInit(ctx, msg)
	case comm.TypeRoomJoin:
		b.handleJoin(ctx, msg)
	case comm.TypeRoomReady:
		b.handleReady(ctx, msg)
	case comm.TypeRoomLeave:
		b.handleLeave(ctx, msg)
	case comm.TypeRoomStart:
		b.handleStart(ctx, msg)
	case comm.TypeAnswer:
		b.handleAnswer(ctx, msg)
	case comm.TypeReconnect:
		b.handleReconnect(ctx, msg)
	case comm.TypeConnClosed:
		b.handleConnClosed(msg)
	default:
		log.Warnf("unknown command type %s from socket %s", msg.Type, msg.SocketId)
	}
}

func (b *Broker) handleInit(ctx context.Context, msg *comm.WSMessage) {
	req := comm.InitRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding init request: %s", err)
		return
	}
	if req.UserID == "" {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	b.Presence.Bind(msg.SocketId, req.UserID, req.DisplayName)

	resp := comm.InitResponse{UserID: req.UserID}
	// the registry, not presence, decides membership: the user may have
	// joined over the request/response surface before this socket existed
	if roomID := b.Registry.OpenRoomOf(req.UserID); roomID != "" {
		actor, err := b.Registry.Room(roomID)
		if err == nil {
			snap, err := actor.Snapshot(ctx)
			if err == nil {
				// resync: re-attach the socket and hand back the full state
				b.Hub.Subscribe(roomID, msg.SocketId)
				b.Presence.SetRoom(req.UserID, roomID)
				resp.Room = snap
			}
		}
	}
	if resp.Room == nil {
		b.Presence.ClearRoom(req.UserID)
	}

	b.Hub.Send(msg.SocketId, comm.TypeInitResponse, resp)
}

func (b *Broker) handleJoin(ctx context.Context, msg *comm.WSMessage) {
	req := comm.RoomRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding join request: %s", err)
		return
	}
	userID, displayName, ok := b.Presence.UserOf(msg.SocketId)
	if !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	actor, err := b.Registry.Room(req.RoomID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	snap, err := actor.Join(ctx, userID, displayName)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}

	b.Presence.SetRoom(userID, req.RoomID)
	b.Hub.Subscribe(req.RoomID, msg.SocketId)
	b.Hub.Send(msg.SocketId, comm.TypeRoomState, snap)
}

func (b *Broker) handleReady(ctx context.Context, msg *comm.WSMessage) {
	req := comm.ReadyRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding ready request: %s", err)
		return
	}
	userID, _, ok := b.Presence.UserOf(msg.SocketId)
	if !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	actor, err := b.Registry.Room(req.RoomID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	snap, err := actor.SetReady(ctx, userID, req.Ready)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	b.Hub.Send(msg.SocketId, comm.TypeRoomState, snap)
}

func (b *Broker) handleLeave(ctx context.Context, msg *comm.WSMessage) {
	req := comm.RoomRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding leave request: %s", err)
		return
	}
	userID, _, ok := b.Presence.UserOf(msg.SocketId)
	if !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	actor, err := b.Registry.Room(req.RoomID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	snap, err := actor.Leave(ctx, userID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}

	b.Presence.ClearRoom(userID)
	b.Hub.Unsubscribe(req.RoomID, msg.SocketId)
	b.Hub.Send(msg.SocketId, comm.TypeRoomState, snap)
}

func (b *Broker) handleStart(ctx context.Context, msg *comm.WSMessage) {
	req := comm.RoomRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding start request: %s", err)
		return
	}
	userID, _, ok := b.Presence.UserOf(msg.SocketId)
	if !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	actor, err := b.Registry.Room(req.RoomID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	snap, err := actor.Snapshot(ctx)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}

	// fetch the question set up front; the room command itself never waits
	// on the pool
	questions, err := b.Questions.QuestionSet(ctx, snap.Room.ServerID, b.Cfg.QuestionsPerMatch)
	if err != nil {
		log.Errorf("Error fetching question set for room %s: %s", req.RoomID, err)
		b.sendError(msg.SocketId, err)
		return
	}

	if _, _, err := actor.Start(ctx, userID, questions); err != nil {
		b.sendError(msg.SocketId, err)
	}
}

func (b *Broker) handleAnswer(ctx context.Context, msg *comm.WSMessage) {
	req := comm.AnswerRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding answer request: %s", err)
		return
	}
	userID, _, ok := b.Presence.UserOf(msg.SocketId)
	if !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	runner, err := b.Registry.Runner(req.MatchID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}
	correct, err := runner.SubmitAnswer(userID, req.QuestionID, req.AnswerID, req.TimeMs)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}

	b.Hub.Send(msg.SocketId, comm.TypeAnswerResult, comm.AnswerResult{
		QuestionID: req.QuestionID,
		IsCorrect:  correct,
	})
}

func (b *Broker) handleReconnect(ctx context.Context, msg *comm.WSMessage) {
	req := comm.ReconnectRequest{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding reconnect request: %s", err)
		return
	}
	if _, _, ok := b.Presence.UserOf(msg.SocketId); !ok {
		b.sendError(msg.SocketId, engine.ErrUnauthorized)
		return
	}

	runner, err := b.Registry.Runner(req.MatchID)
	if err != nil {
		b.sendError(msg.SocketId, err)
		return
	}

	b.Hub.Subscribe(req.MatchID, msg.SocketId)
	b.Hub.Send(msg.SocketId, comm.TypeQuestions, comm.MatchQuestions{
		MatchID:        req.MatchID,
		Questions:      runner.Questions(),
		SessionDeadSec: int(time.Until(runner.Deadline()).Seconds()),
	})
}

func (b *Broker) handleConnClosed(msg *comm.WSMessage) {
	req := comm.ConnClosed{}
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Errorf("Error decoding conn closed event: %s", err)
		return
	}
	socketID := req.SocketID
	if socketID == "" {
		socketID = msg.SocketId
	}
	b.Presence.Disconnected(socketID)
	b.Hub.DropSocket(socketID)
}

// sendError reports a failed command to the socket that issued it.
func (b *Broker) sendError(socketId string, err error) {
	payload := comm.ErrorPayload{Code: engine.CodeOf(err), Message: err.Error()}
	var coded *engine.Error
	if errors.As(err, &coded) {
		payload.Message = coded.Message
		payload.UserID = coded.UserID
	}
	b.Hub.Send(socketId, comm.TypeError, payload)
}

func (b *Broker) QueueSubscribeCommands(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *Broker) SubscribeCommands(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
