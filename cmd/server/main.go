package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatio/config"
	"chatio/internal/cache"
	"chatio/internal/database"
	"chatio/internal/logging"
	"chatio/internal/router"
	"chatio/internal/ws"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Server.Env, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	if err := database.SeedMasterData(db); err != nil {
		log.Fatal("seed master data", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	var store cache.Store
	relayDone := make(chan error, 1)
	if cfg.Cache.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL, cfg.Cache.Namespace)
		if err != nil {
			log.Fatal("redis", zap.Error(err))
		}
		relay := ws.NewRedisRelay(rs.Client(), cfg.Cache.Namespace+":relay", hub, log)
		hub.SetRelay(relay)
		go func() { relayDone <- relay.Run(ctx, nil) }()
		store = rs
		log.Info("presence store: redis")
	} else {
		store = cache.NewMemoryStore()
		close(relayDone)
		log.Warn("presence store: memory, single instance only")
	}
	defer store.Close()

	engine := router.Setup(cfg, db, store, hub, log)
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     engine,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout would cut long-lived websocket connections.
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := <-relayDone; err != nil {
		log.Error("relay", zap.Error(err))
	}
	log.Info("server stopped")
}
