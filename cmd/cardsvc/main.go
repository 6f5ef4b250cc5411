package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/namecard-services/configs"
	"github.com/avvvet/namecard-services/internal/cardsvc/broker"
	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/command"
	cardconfig "github.com/avvvet/namecard-services/internal/cardsvc/config"
	handlers "github.com/avvvet/namecard-services/internal/cardsvc/handlers"
	"github.com/avvvet/namecard-services/internal/cardsvc/loop"
	"github.com/avvvet/namecard-services/internal/cardsvc/responder"
	"github.com/avvvet/namecard-services/internal/cardsvc/service"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/store"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	"github.com/avvvet/namecard-services/internal/comm"
	nats "github.com/avvvet/namecard-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "card"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
}

func main() {
	cfg, err := cardconfig.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// catalog
	cards := catalog.New(cfg.CatalogPath)
	cards.Load()

	// storage
	backend, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("Invalid storage configuration: %v", err)
	}
	ownership := store.NewOwnershipStore(backend)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ownership.Connect(ctx); err != nil {
		// the service keeps running, every read comes back empty until restart
		log.Errorf("%s storage unavailable, card data will be empty", cfg.StorageType)
	} else {
		log.Infof("%s storage connected", cfg.StorageType)
	}
	cancel()

	cardService := service.NewCardService(cards, ownership)

	// coordinating loop and workers
	l := loop.New(cfg.LoopBuffer)
	go l.Run(context.Background())
	pool := worker.NewPool(cfg.Workers, cfg.TaskTimeout)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// init peer message broker
	registry := session.NewRegistry()
	b := broker.NewBroker(n.Conn, l, registry)
	cmd := command.New(cards, cardService, registry, b, pool, l)
	b.Attach(responder.New(cards, cardService, registry, b, pool, l), cmd)

	// subscribe to socket service
	sub, err := b.SubscribSocketService(n.Conn, comm.SocketTopic)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", comm.SocketTopic, err)
		os.Exit(1)
	}

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
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(cfg.Port, cards, cmd, l)
	h.InitAuth(cfg.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
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
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service http shutdown failed: %+v", SERVICE_NAME, err)
	}

	sub.Unsubscribe()

	l.Stop()
	<-l.Done()
	pool.Close(10 * time.Second)

	ownership.Disconnect()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
