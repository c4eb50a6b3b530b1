package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pecel/api/internal/app"
	"pecel/api/internal/config"
	"pecel/api/internal/realtime"
	"pecel/api/internal/search"
	"pecel/api/internal/session"
	"pecel/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	var index app.SearchIndex
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		index = meiliClient
	}

	hub := realtime.NewHub()

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewService(dataStore, redisStore, hub, index, cfg.SessionSecret, cfg.SessionTTL)
	} else {
		log.Printf("Using PostgreSQL for session storage")
		service = app.NewService(dataStore, dataStore, hub, index, cfg.SessionSecret, cfg.SessionTTL)
	}

	if err := service.Bootstrap(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Printf("WARNING: superadmin bootstrap failed: %v", err)
	}

	if meiliClient != nil {
		if err := service.ReindexDocuments(ctx, meiliClient); err != nil {
			log.Printf("WARNING: search reindex failed (will serve with fallback): %v", err)
		}
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)

	// /ws bypasses the API middleware: the websocket upgrade needs the raw
	// ResponseWriter for hijacking.
	mux := http.NewServeMux()
	mux.Handle("/ws", realtime.Handler(hub))
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("PECEL DUKCAPIL API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
