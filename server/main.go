package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/hazard-cam/server/alert"
	"github.com/san-kum/hazard-cam/server/capture"
	"github.com/san-kum/hazard-cam/server/config"
	"github.com/san-kum/hazard-cam/server/detection"
	"github.com/san-kum/hazard-cam/server/handlers"
	"github.com/san-kum/hazard-cam/server/middleware"
	"github.com/san-kum/hazard-cam/server/models"
	"github.com/san-kum/hazard-cam/server/store"
	"github.com/san-kum/hazard-cam/server/stream"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	db          *store.DB
	hub         *handlers.Hub
	controller  *stream.Controller
	dispatcher  *alert.Dispatcher
	detector    detection.Client
	switcher    *capture.Switcher
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("detection_endpoint", cfg.Detection.Endpoint),
			zap.String("detection_transport", cfg.Detection.Transport))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapConfig.Level = level

	return zapConfig.Build()
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database.Path, cfg.Database.MaxHazards)
	if err != nil {
		return nil, err
	}
	settings := db.Settings()

	newSource := func(cameraURL string) (capture.Source, error) {
		return capture.New(capture.Options{
			Mode:         cfg.Camera.Mode,
			URL:          cameraURL,
			StreamPath:   cfg.Camera.StreamPath,
			SnapshotPath: cfg.Camera.SnapshotPath,
			DeviceID:     cfg.Camera.DeviceID,
			StaleAfter:   cfg.Camera.StaleAfter,
			MaxBackoff:   cfg.Camera.MaxBackoff,
		}, logger.Named("capture"))
	}

	switcher := capture.NewSwitcher(nil)
	cameraURL := resolveCameraURL(settings, cfg.Camera.URL, logger)
	if cameraURL != "" || cfg.Camera.Mode == capture.ModeDevice {
		source, err := newSource(cameraURL)
		if err != nil {
			logger.Warn("Camera source unavailable, waiting for a new endpoint", zap.Error(err))
		} else {
			switcher.Replace(source)
		}
	}

	detector, err := detection.NewClient(detection.Options{
		Endpoint:  cfg.Detection.Endpoint,
		Transport: cfg.Detection.Transport,
		Method:    cfg.Detection.Method,
	}, logger.Named("detection"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create detection client: %w", err)
	}

	hub := handlers.NewHub(logger.Named("hub"))

	player, err := alert.NewPlayer(cfg.Alert.Player, cfg.Alert.PlayerCommand, cfg.Server.StaticDir)
	if err != nil {
		db.Close()
		detector.Close()
		return nil, err
	}
	dispatcher := alert.NewDispatcher(player, map[alert.Cue]string{
		alert.CueWarning: cfg.Alert.WarningSound,
		alert.CueError:   cfg.Alert.CriticalSound,
	}, hub, logger.Named("alert"))

	position := stream.NewPositionHolder(models.GeoPosition{
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
	})

	controller := stream.NewController(stream.Options{
		Source:         switcher,
		Encoder:        capture.NewEncoder(cfg.Camera.JPEGQuality),
		Detector:       detector,
		Alerts:         dispatcher,
		Position:       position,
		HazardLog:      db.Hazards(),
		Publisher:      hub,
		RecordFrom:     cfg.Database.RecordFrom,
		RequestTimeout: cfg.Detection.Timeout,
		RetryDelay:     cfg.Stream.CaptureRetryDelay,
		Logger:         logger.Named("stream"),
	})

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
	router.Use(middleware.InputValidation())

	wsHandler := handlers.NewWebSocketHandler(hub, controller, cfg.Security.AllowedOrigins, logger)
	controlHandler := handlers.NewControlHandler(handlers.ControlDeps{
		Session:   controller,
		Switcher:  switcher,
		NewSource: newSource,
		Settings:  settings,
		Hazards:   db.Hazards(),
		Position:  position,
	}, logger)

	setupRoutes(router, cfg, db, wsHandler, controlHandler, rateLimiter, logger)

	return &Server{
		router:      router,
		logger:      logger,
		db:          db,
		hub:         hub,
		controller:  controller,
		dispatcher:  dispatcher,
		detector:    detector,
		switcher:    switcher,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}

// resolveCameraURL prefers the endpoint saved by a client over CAMERA_URL.
func resolveCameraURL(settings store.Settings, fallback string, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	saved, err := settings.Get(ctx, store.KeyCameraURL)
	switch {
	case err == nil && saved != "":
		logger.Info("Using saved camera endpoint", zap.String("url", saved))
		return saved
	case err != nil && !errors.Is(err, store.ErrNotFound):
		logger.Warn("Failed to read saved camera endpoint", zap.Error(err))
	}
	return fallback
}

func setupRoutes(router *gin.Engine, cfg *config.Config, db *store.DB, wsHandler *handlers.WebSocketHandler, control *handlers.ControlHandler, rateLimiter *middleware.RateLimiter, logger *zap.Logger) {
	health := middleware.HealthCheck("hazard-cam", db.Ping)
	requireToken := middleware.RequireToken(cfg.Security.APIToken, logger)

	router.GET("/health", health)

	router.GET("/ws", rateLimiter.RateLimit(), requireToken, wsHandler.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", health)

		protected := api.Group("/")
		protected.Use(rateLimiter.RateLimit(), requireToken)
		{
			protected.GET("/status", control.GetStatus)
			protected.POST("/recording/start", control.StartRecording)
			protected.POST("/recording/stop", control.StopRecording)

			protected.GET("/camera", control.GetCamera)
			protected.PUT("/camera", rateLimiter.RateLimitWithConfig(1, 3), control.PutCamera)

			protected.GET("/location", control.GetLocation)
			protected.PUT("/location", control.PutLocation)

			protected.GET("/hazards", control.ListHazards)
		}
	}

	if info, err := os.Stat(cfg.Server.StaticDir); err == nil && info.IsDir() {
		router.Static("/static", cfg.Server.StaticDir)
	} else {
		logger.Info("Static directory not found, alert assets are not served", zap.String("dir", cfg.Server.StaticDir))
	}
}

// Shutdown stops recording first so the in-flight request can resolve
// before the detector and store close.
func (s *Server) Shutdown() {
	if err := s.controller.Shutdown(s.config.Stream.ShutdownTimeout); err != nil {
		s.logger.Warn("Streaming loop did not stop cleanly", zap.Error(err))
	}

	s.dispatcher.Wait()
	s.hub.Close()
	s.rateLimiter.Shutdown()

	if err := s.switcher.Close(); err != nil {
		s.logger.Warn("Failed to close camera source", zap.Error(err))
	}
	if err := s.detector.Close(); err != nil {
		s.logger.Warn("Failed to close detection client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
}
