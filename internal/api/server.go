package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/handlers"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/middleware"
	"tessera/internal/monitoring"
	"tessera/internal/repository"
	"tessera/internal/service"
)

// Server wires the HTTP API together
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	queue    *messaging.Queue
	cache    *cache.Client
	services *service.Services
	repos    *repository.Repositories
	stopPool chan struct{}
}

func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("failed to run migrations", "error", err)
	}

	cacheClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", "error", err)
	}

	queue, err := messaging.Connect(cfg.Queue, cacheClient)
	if err != nil {
		logger.Fatal("failed to connect to queue", "error", err)
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, queue, cfg)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		queue:    queue,
		cache:    cacheClient,
		services: services,
		repos:    repos,
		stopPool: make(chan struct{}),
	}

	go monitoring.CollectPoolStats(func() (int, int) {
		stats := db.GetPoolStats()
		return stats.InUse, stats.Idle
	}, 15*time.Second, server.stopPool)

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services, s.db)

	api := s.router.Group("/api")
	api.Use(middleware.JWTAuth(s.config.JWTSecret))
	{
		tickets := api.Group("/tickets")
		{
			tickets.POST("/generation-jobs", h.CreateGenerationJob)
			tickets.GET("/generation-jobs/:job_uid", h.GetGenerationJob)
		}

		events := api.Group("/events")
		{
			events.GET("/:event_id/generation-jobs", h.ListGenerationJobs)
			events.GET("/:event_id/scans", h.ListScans)
		}

		scans := api.Group("/scans")
		{
			scans.POST("/validate", h.ValidateScan)
		}
	}

	// Renderer callbacks authenticate with the shared webhook secret, not JWT
	internal := s.router.Group("/internal")
	internal.Use(middleware.WebhookAuth(s.config.WebhookSecret))
	{
		internal.POST("/generation/webhook", h.GenerationWebhook)
	}

	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter exposes the router for tests and for http.Server wiring
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup closes external connections
func (s *Server) Cleanup() error {
	close(s.stopPool)

	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			logger.Get().Error("error closing queue connection", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logger.Get().Error("error closing redis connection", "error", err)
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
