package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/internal/metrics"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// Version версия API
const Version = "1.0.0"

// Dependencies сервисы, обслуживаемые HTTP API
type Dependencies struct {
	Routes   RouteService
	Recorder Recorder
	Settings SettingsService
	Points   PointSource
}

// Server локальный HTTP сервер
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *utils.Logger
	config      *config.Config
	restHandler *RESTHandler
	wsHandler   *WebSocketHandler
}

// NewServer создает новый HTTP сервер
func NewServer(cfg *config.Config, deps Dependencies, logger *utils.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg.Performance.RateLimitRPS, cfg.Performance.RateLimitBurst))
	router.Use(SecurityHeadersMiddleware())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(metrics.HTTPMetricsMiddleware())
	}

	server := &Server{
		router:      router,
		logger:      logger,
		config:      cfg,
		restHandler: NewRESTHandler(deps.Routes, deps.Recorder, deps.Settings, logger),
		wsHandler: NewWebSocketHandler(deps.Points,
			cfg.Performance.WebSocketPingInterval, cfg.Performance.WebSocketPongTimeout, logger),
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()

	return server
}

// Handler корневой http.Handler (для тестов)
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		routes := v1.Group("/routes")
		routes.GET("", s.restHandler.ListRoutes)
		routes.POST("/import", s.restHandler.ImportGPX)
		routes.GET("/:id", s.restHandler.GetRoute)
		routes.PATCH("/:id", s.restHandler.UpdateRoute)
		routes.DELETE("/:id", s.restHandler.DeleteRoute)
		routes.GET("/:id/gpx", s.restHandler.ExportGPX)

		recording := v1.Group("/recording")
		recording.POST("/start", s.restHandler.StartRecording)
		recording.POST("/end", s.restHandler.EndRecording)
		recording.GET("/last-points", s.restHandler.LastPoints)

		v1.GET("/status", s.restHandler.GetStatus)
		v1.GET("/odometer", s.restHandler.GetOdometer)
		v1.GET("/settings", s.restHandler.GetSettings)
		v1.PUT("/settings", s.restHandler.UpdateSettings)
	}

	s.router.GET("/ws/v1/points", s.wsHandler.HandleWebSocket)

	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.httpServer.Addr,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   Version,
	})
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Debug("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	})
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware заголовки безопасности
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
