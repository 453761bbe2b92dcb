// Package api serves the latest observed chain data over HTTP and streams
// updates to WebSocket clients.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/broadcast"
	"github.com/0xmhha/btcwatcher/internal/config"
	"github.com/0xmhha/btcwatcher/internal/consumer"
	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// Server represents the API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	listener  net.Listener
	logger    *logger.Logger
	config    *config.Config
	store     *consumer.Store
	auth      *AuthMiddleware
	host      string
	port      int
	version   string
	startedAt time.Time

	// WebSocket clients (protected by wsClientsMu)
	wsClients   map[*WSClient]bool
	wsClientsMu sync.RWMutex
	wsUpgrader  websocket.Upgrader
	events      *broadcast.Subscription[consumer.Event]
	pumpDone    chan struct{}
}

// NewServer creates a new API server over store. It starts relaying store
// events to WebSocket clients immediately; call Stop to release them.
func NewServer(cfg *config.Config, store *consumer.Store, version string, logger *logger.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))
	router.Use(cors.New(corsConfig(cfg.APICORSOrigins)))

	port := config.DefaultAPIPort
	if cfg.APIPort > 0 {
		port = cfg.APIPort
	}

	s := &Server{
		router:    router,
		logger:    logger.Named("api"),
		config:    cfg,
		store:     store,
		host:      cfg.APIHost,
		port:      port,
		version:   version,
		startedAt: time.Now(),
		wsClients: make(map[*WSClient]bool),
		events:    store.Subscribe(),
		pumpDone:  make(chan struct{}),
	}
	s.wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if cfg.APIKey != "" || cfg.APIJWTSecret != "" {
		s.auth = NewAuthMiddleware(cfg.APIKey, cfg.APIJWTSecret, s.logger)
	}

	s.setupRoutes()
	go s.pumpEvents()

	return s
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	v1 := s.router.Group("/api/v1")
	if s.config.APIRateLimit > 0 {
		v1.Use(NewRateLimiter(s.config.APIRateLimit).Middleware())
	}
	if s.auth != nil {
		v1.Use(s.auth.Authenticate())
	}

	v1.GET("/status", s.getStatus)
	v1.GET("/version", s.getVersion)

	v1.GET("/chain", s.getChainState)
	v1.GET("/blockstats", s.getBlockStats)
	v1.GET("/fees", s.getFeeEstimate)

	v1.GET("/ws", s.handleWebSocket)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || containsString(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		ErrorLog:    s.logger.StdLogger(),
	}

	go func() {
		s.logger.Info("Starting API server", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop disconnects WebSocket clients and stops the API server. It is safe
// to call on a server that was never started.
func (s *Server) Stop() error {
	s.events.Unsubscribe()
	<-s.pumpDone
	s.closeAllClients()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown API server gracefully", zap.Error(err))
		return err
	}
	s.server = nil

	s.logger.Info("API server stopped")
	return nil
}

// healthHandler handles health check requests
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// readyHandler reports ready once a chain state has been observed
func (s *Server) readyHandler(c *gin.Context) {
	chain, ok := s.store.ChainState()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "No chain state observed yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"height":    chain.Value.Height,
		"timestamp": time.Now().Unix(),
	})
}

// getStatus returns the system status
func (s *Server) getStatus(c *gin.Context) {
	streams := gin.H{}
	status := gin.H{
		"status":     "running",
		"version":    s.version,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"ws_clients": s.clientCount(),
		"streams":    streams,
	}

	if chain, ok := s.store.ChainState(); ok {
		status["chain"] = gin.H{
			"network": chain.Value.Chain,
			"height":  chain.Value.Height,
			"headers": chain.Value.Headers,
			"syncing": chain.Value.Syncing(),
		}
		streams[consumer.TopicChainState] = chain.ReceivedAt
	}
	if stats, ok := s.store.BlockStats(); ok {
		streams[consumer.TopicBlockStats] = stats.ReceivedAt
	}
	if fees, ok := s.store.FeeEstimate(); ok {
		streams[consumer.TopicFees] = fees.ReceivedAt
	}

	c.JSON(http.StatusOK, status)
}

// getVersion returns version information
func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"api":     "v1",
	})
}

func (s *Server) getChainState(c *gin.Context) {
	entry, ok := s.store.ChainState()
	if !ok {
		notObserved(c, "chain state")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) getBlockStats(c *gin.Context) {
	entry, ok := s.store.BlockStats()
	if !ok {
		notObserved(c, "block stats")
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) getFeeEstimate(c *gin.Context) {
	entry, ok := s.store.FeeEstimate()
	if !ok {
		notObserved(c, "fee estimate")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        entry.Value,
		"tiers":       entry.Value.Tiers(),
		"received_at": entry.ReceivedAt,
	})
}

func notObserved(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": fmt.Sprintf("No %s observed yet", what),
	})
}

// ginLogger creates a Gin logging middleware
func ginLogger(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Debug("API request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
