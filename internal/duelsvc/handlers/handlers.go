package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	"github.com/korfarm/duel-services/internal/duelsvc/engine"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
	"github.com/korfarm/duel-services/internal/duelsvc/service"
)

// Handler is the request/response fallback for clients without a live
// socket. It drives the same engine as the push channel, so both surfaces
// agree on every outcome.
type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	registry  *engine.Registry
	presence  *engine.Presence
	matches   *service.MatchService
	stats     *service.StatService
	questions engine.QuestionProvider
	cfg       engine.Config
}

func NewHandler(registry *engine.Registry, presence *engine.Presence, matches *service.MatchService,
	stats *service.StatService, questions engine.QuestionProvider, cfg engine.Config) *Handler {
	return &Handler{registry: registry, presence: presence, matches: matches, stats: stats, questions: questions, cfg: cfg}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) errorResponse(w http.ResponseWriter, err error) {
	rsp := Response{Code: statusForCode(engine.CodeOf(err)), Error: engine.CodeOf(err)}
	var coded *engine.Error
	if errors.As(err, &coded) {
		rsp.Message = coded.Message
	} else {
		log.Errorf("internal error on request: %v", err)
		rsp.Message = "internal error"
	}
	h.CreateResponse(w, rsp)
}

// statusForCode maps engine error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case "ROOM_NOT_FOUND", "MATCH_NOT_FOUND", "QUESTION_NOT_FOUND":
		return http.StatusNotFound
	case "NOT_HOST", "NOT_MEMBER", "UNAUTHORIZED":
		return http.StatusForbidden
	case "ROOM_FULL", "ALREADY_MEMBER", "ALREADY_STARTED", "ROOM_NOT_OPEN",
		"INSUFFICIENT_PLAYERS", "INSUFFICIENT_BALANCE", "NOT_ENOUGH_QUESTIONS":
		return http.StatusConflict
	case "INVALID_SERVER", "INVALID_ROOM_NAME", "INVALID_STAKE":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// identity pulls the authenticated user out of the JWT claims.
func identity(r *http.Request) (userID, displayName string, err error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", "", err
	}
	userID, _ = claims["user_id"].(string)
	displayName, _ = claims["display_name"].(string)
	if userID == "" {
		return "", "", engine.ErrUnauthorized
	}
	if displayName == "" {
		displayName = userID
	}
	return userID, displayName, nil
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "duel service is running at port " + os.Getenv("SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) ListServersHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{Code: 200, Data: models.Tiers})
}

func (h *Handler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	if _, ok := models.TierByID(serverID); !ok {
		h.errorResponse(w, engine.ErrInvalidServer)
		return
	}
	rooms := h.registry.ListRooms(r.Context(), serverID)
	h.CreateResponse(w, Response{Code: 200, Data: rooms})
}

type createRoomRequest struct {
	ServerID    string `json:"server_id"`
	RoomName    string `json:"room_name"`
	StakeAmount int64  `json:"stake_amount"`
	RoomSize    int    `json:"room_size"`
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, displayName, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}

	req := createRoomRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.CreateResponse(w, Response{Code: 400, Error: "BAD_REQUEST", Message: "invalid request body"})
		return
	}

	snap, err := h.registry.CreateRoom(r.Context(), req.ServerID, userID, displayName, req.RoomName, req.StakeAmount, req.RoomSize)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 201, Data: snap})
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := h.registry.Room(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	snap, err := actor.Snapshot(r.Context())
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: snap})
}

func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, displayName, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "roomID")
	actor, err := h.registry.Room(roomID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	snap, err := actor.Join(r.Context(), userID, displayName)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	// keep any live socket session pointed at the room
	h.presence.SetRoom(userID, roomID)
	h.CreateResponse(w, Response{Code: 200, Data: snap})
}

type readyRequest struct {
	Ready bool `json:"ready"`
}

func (h *Handler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}

	req := readyRequest{Ready: true}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.CreateResponse(w, Response{Code: 400, Error: "BAD_REQUEST", Message: "invalid request body"})
			return
		}
	}

	actor, err := h.registry.Room(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	snap, err := actor.SetReady(r.Context(), userID, req.Ready)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: snap})
}

func (h *Handler) StartRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}
	actor, err := h.registry.Room(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	snap, err := actor.Snapshot(r.Context())
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	questions, err := h.questions.QuestionSet(r.Context(), snap.Room.ServerID, h.cfg.QuestionsPerMatch)
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	matchID, _, err := actor.Start(r.Context(), userID, questions)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: map[string]string{"match_id": matchID}})
}

func (h *Handler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}
	actor, err := h.registry.Room(chi.URLParam(r, "roomID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	snap, err := actor.Leave(r.Context(), userID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	// a user who left must not draw a synthetic leave later
	h.presence.ClearRoom(userID)
	h.CreateResponse(w, Response{Code: 200, Data: snap})
}

func (h *Handler) MatchResultsHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := h.matches.Results(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: detail})
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, err := identity(r)
	if err != nil {
		h.errorResponse(w, engine.ErrUnauthorized)
		return
	}
	serverID := r.URL.Query().Get("server_id")
	if _, ok := models.TierByID(serverID); !ok {
		h.errorResponse(w, engine.ErrInvalidServer)
		return
	}
	stat, err := h.stats.Get(r.Context(), serverID, userID)
	if err != nil {
		h.errorResponse(w, err)
		return
	}
	h.CreateResponse(w, Response{Code: 200, Data: stat})
}
