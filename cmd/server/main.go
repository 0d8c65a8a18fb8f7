package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/estatehub/catalog/config"
	"github.com/estatehub/catalog/internal/api"
	"github.com/estatehub/catalog/internal/cache"
	"github.com/estatehub/catalog/internal/catalog"
	"github.com/estatehub/catalog/internal/events"
	"github.com/estatehub/catalog/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.WithError(err).Fatal("Failed to create database directory")
		}
	}
	logger.Infof("Using database at: %s", cfg.DatabasePath)

	st, err := store.NewStore(cfg.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	defer st.Close()

	hub := events.NewHub(cfg.Hub.SendBuffer, logger)
	defer hub.Close()
	notifier := events.NewNotifier(hub, logger)

	engine := catalog.NewEngine(st, notifier, cfg.Query.DefaultLimit, cfg.Query.MaxLimit, logger)

	pageCache := cache.NewPageCache(cfg.RedisAddr, time.Duration(cfg.CacheTTL)*time.Second, logger)
	if pageCache != nil {
		logger.Infof("Server-side page cache enabled at %s", cfg.RedisAddr)
		defer pageCache.Close()
	}

	ws := events.NewWSServer(hub, time.Duration(cfg.Hub.WriteTimeout)*time.Second, logger)
	handler := api.NewHandler(engine, pageCache, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	api.SetupRoutes(router, handler, ws)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
