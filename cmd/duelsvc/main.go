package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/korfarm/duel-services/configs"
	"github.com/korfarm/duel-services/internal/duelsvc/broker"
	"github.com/korfarm/duel-services/internal/duelsvc/db"
	"github.com/korfarm/duel-services/internal/duelsvc/engine"
	handlers "github.com/korfarm/duel-services/internal/duelsvc/handlers"
	"github.com/korfarm/duel-services/internal/duelsvc/service"
	"github.com/korfarm/duel-services/internal/duelsvc/store"
	nats "github.com/korfarm/duel-services/internal/nats"
)

const SERVICE_NAME = "duel"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	// mongo connection for the question pool
	mongoDB, cancelMongo, err := db.ConnectToMongo()
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer cancelMongo()
	log.Printf("mongo connection established successfully")

	roomStore := store.NewRoomStore(dbpool)
	matchStore := store.NewMatchStore(dbpool)
	resultStore := store.NewResultStore(dbpool)
	statStore := store.NewStatStore(dbpool)
	ledgerStore := store.NewLedgerStore(dbpool)
	questionStore := store.NewQuestionStore(mongoDB)

	statService := service.NewStatService(statStore)
	matchService := service.NewMatchService(matchStore, resultStore)
	persistService := service.NewPersistService(roomStore, matchStore, resultStore, statService)

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// engine wiring
	cfg := engine.LoadConfig()
	hub := engine.NewHub(n.Conn, nats.TopicGateway)
	registry := engine.NewRegistry(cfg, hub, ledgerStore, persistService)

	presence := engine.NewPresence(cfg.PresenceGrace)
	presence.SetExpireFunc(func(userID, roomID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		actor, err := registry.Room(roomID)
		if err != nil {
			return
		}
		if _, err := actor.Leave(ctx, userID); err != nil {
			log.Errorf("synthetic leave for user %s from room %s failed: %v", userID, roomID, err)
		}
	})

	// init command broker
	b := broker.NewBroker(n.Conn, registry, presence, hub, questionStore, cfg)

	sub, err := b.SubscribeCommands(nats.TopicCommand)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	// close rooms that stayed open too long
	janitorStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				registry.CleanupStaleRooms(ctx)
				cancel()
			case <-janitorStop:
				return
			}
		}
	}()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(registry, presence, matchService, statService, questionStore, cfg)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("DUEL_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	close(janitorStop)
	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
