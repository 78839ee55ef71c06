package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/OldStager01/vm-autoscaler/api/docs"
	"github.com/OldStager01/vm-autoscaler/api/handlers"
	"github.com/OldStager01/vm-autoscaler/api/middleware"
	"github.com/OldStager01/vm-autoscaler/api/websocket"
	"github.com/OldStager01/vm-autoscaler/internal/auth"
	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/database"
	"github.com/OldStager01/vm-autoscaler/pkg/database/queries"
)

const defaultJWTSecret = "change-me-in-production"

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	db          *database.DB
	fleet       handlers.FleetView
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	stopHub     context.CancelFunc
}

// NewServer builds the router. db may be nil, in which case the history
// routes are not mounted.
func NewServer(cfg *config.Config, db *database.DB, fleet handlers.FleetView) *Server {
	if cfg.API.JWTSecret == "" || cfg.API.JWTSecret == defaultJWTSecret {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		config:      cfg.API,
		db:          db,
		fleet:       fleet,
		authService: auth.NewService(cfg.API.JWTSecret, cfg.API.JWTDuration),
	}

	s.setupMiddleware()
	s.setupRoutes()

	if cfg.WebSocket.Enabled {
		s.startWebSocket(&cfg.WebSocket)
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.RequestSizeLimit(1 << 20))
	s.router.Use(middleware.RateLimit(middleware.NewRateLimiter(s.config.RateLimit, time.Minute)))
}

func (s *Server) setupRoutes() {
	secureCookie := gin.Mode() == gin.ReleaseMode

	healthHandler := handlers.NewHealthHandler(s.db, s.fleet)
	authHandler := handlers.NewAuthHandler(s.config.AdminUsername, s.config.AdminPasswordHash, s.authService, secureCookie)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)
	s.router.POST("/auth/logout", authHandler.Logout)

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		protected.GET("/auth/me", authHandler.Me)

		if s.fleet != nil {
			fleetHandler := handlers.NewFleetHandler(s.fleet, &s.config)
			protected.GET("/fleet", fleetHandler.Status)
			protected.GET("/fleet/vms", fleetHandler.ListVMs)
			protected.GET("/fleet/vms/:id", fleetHandler.GetVM)
			protected.GET("/fleet/hosts", fleetHandler.ListHosts)
			protected.GET("/evaluations/latest", fleetHandler.LatestEvaluation)
			protected.GET("/evaluations/recent", fleetHandler.RecentEvaluations)
			protected.GET("/actions/recent", fleetHandler.RecentActions)
		}

		if s.db != nil {
			historyHandler := handlers.NewHistoryHandler(
				queries.NewEvaluationRepository(s.db.DB),
				queries.NewScalingEventRepository(s.db.DB),
				queries.NewEventRepository(s.db.DB),
				&s.config,
			)
			protected.GET("/history/evaluations", historyHandler.Evaluations)
			protected.GET("/history/actions", historyHandler.ScalingEvents)
			protected.GET("/history/actions/stats", historyHandler.ScalingStats)
			protected.GET("/events/recent", historyHandler.RecentEvents)
		}
	}
}

func (s *Server) startWebSocket(cfg *config.WebSocketConfig) {
	s.wsHub = websocket.NewHub(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.wsHub.Run(ctx)

	if s.fleet != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, s.fleet.SubscribeAllEvents())
		s.wsBridge.Start(ctx)
	}

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		s.httpServer = s.newHTTPServer()
	}
	logger.WithComponent("api").Infof("listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = s.newHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.stopWebSocket()
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopWebSocket()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) stopWebSocket() {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	if s.stopHub != nil {
		s.stopHub()
	}
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
