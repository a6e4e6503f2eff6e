package handlers

import (
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1/duel", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Get("/servers", h.ListServersHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/rooms", h.ListRoomsHandler)
			r.Post("/rooms", h.CreateRoomHandler)
			r.Get("/rooms/{roomID}", h.GetRoomHandler)
			r.Post("/rooms/{roomID}/join", h.JoinRoomHandler)
			r.Post("/rooms/{roomID}/ready", h.ReadyHandler)
			r.Post("/rooms/{roomID}/start", h.StartRoomHandler)
			r.Post("/rooms/{roomID}/leave", h.LeaveRoomHandler)

			r.Get("/matches/{matchID}/results", h.MatchResultsHandler)
			r.Get("/stats", h.StatsHandler)
		})
	})
}

func (h *Handler) InitAuth() {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"user_id":      "user_dev",
		"display_name": "Dev",
		"exp":          expirationTime,
	})

	// For debugging only, comment it out in production
	log.Infof("DEBUG: JWT for testing expires soon : %s", tokenString)
}
