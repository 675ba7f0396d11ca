package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andyk/termmux/api/handlers"
	"github.com/andyk/termmux/internal/config"
	"github.com/andyk/termmux/internal/dispatch"
	"github.com/andyk/termmux/internal/hub"
	"github.com/andyk/termmux/internal/logging"
	"github.com/andyk/termmux/internal/relay"
	"github.com/andyk/termmux/internal/server"
	"github.com/andyk/termmux/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logging.NewDefault().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if cfg.Session.RecordDir != "" {
		if err := os.MkdirAll(cfg.Session.RecordDir, 0o755); err != nil {
			logger.Fatal("failed to create record directory", zap.Error(err))
		}
	}

	broadcastHub := hub.New(logger)
	registry := session.NewRegistry(session.Options{
		Mode:        cfg.Mode(),
		Shell:       cfg.Session.Shell,
		HelperPath:  cfg.Session.HelperPath,
		ViewTimeout: cfg.Session.ViewTimeout,
		RecordDir:   cfg.Session.RecordDir,
	}, broadcastHub, logger)
	dispatcher := dispatch.New(registry, broadcastHub, logger)
	outputRelay := relay.New(registry, broadcastHub, cfg.Relay.Interval, logger)

	srv := server.New(net.JoinHostPort(cfg.Server.Host, cfg.Server.Port), broadcastHub, dispatcher, logger)
	if err := srv.Listen(); err != nil {
		logger.Fatal("failed to start listener", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relayDone := make(chan struct{})
	go func() {
		outputRelay.Run(ctx)
		close(relayDone)
	}()
	go srv.Serve(ctx)

	httpSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: newRouter(registry, broadcastHub, dispatcher, logger),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	logger.Info("daemon started",
		zap.String("mode", cfg.Session.Mode),
		zap.String("port", cfg.Server.Port),
		zap.String("httpPort", cfg.Server.HTTPPort))

	<-ctx.Done()
	logger.Info("shutting down")

	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)

	// The relay's final flush must reach clients before they are dropped.
	<-relayDone
	broadcastHub.Close()
}

func newRouter(registry *session.Registry, broadcastHub *hub.Hub, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	statusHandler := handlers.NewStatusHandler(registry)
	attachHandler := handlers.NewAttachHandler(broadcastHub, dispatcher, logger)

	r.GET("/health", statusHandler.Health)
	api := r.Group("/api")
	{
		statusHandler.RegisterRoutes(api)
		attachHandler.RegisterRoutes(api)
	}
	return r
}
