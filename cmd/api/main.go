package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sitecms/api/internal/app"
	"sitecms/api/internal/config"
	"sitecms/api/internal/media"
	"sitecms/api/internal/preview"
	"sitecms/api/internal/search"
	"sitecms/api/internal/settings"
	"sitecms/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
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
	deps := app.Deps{}

	if err := os.MkdirAll(filepath.Dir(cfg.SettingsPath), 0o755); err != nil {
		log.Fatalf("failed to create settings dir: %v", err)
	}
	boltStore, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		log.Printf("WARNING: settings store unavailable, device preference will not persist: %v", err)
		deps.Devices = settings.NewMemoryStore()
	} else {
		defer boltStore.Close()
		deps.Devices = boltStore
	}

	pgfts := search.NewPgFTS(db)
	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		index = meiliClient
	}
	deps.Search = search.NewService(index, pgfts)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		library, err := media.NewMinio(ctx, media.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		deps.Media = library
	} else {
		log.Printf("Using in-memory media library")
		deps.Media = media.NewMemory(cfg.MinioPublicURL)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer client.Close()
		log.Printf("Publishing preview updates to Redis")
		deps.Channels = func(sectionID string) preview.Channel {
			return preview.NewRedisChannelWithClient(client, preview.Topic(sectionID))
		}
	}

	service := app.New(cfg, dataStore, deps)
	defer service.Close()
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("sitecms API listening on %s", cfg.Addr)
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
