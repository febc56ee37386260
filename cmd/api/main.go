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

	"scribe/api/internal/ai"
	"scribe/api/internal/app"
	"scribe/api/internal/authpw"
	"scribe/api/internal/backup"
	"scribe/api/internal/config"
	"scribe/api/internal/filetree"
	"scribe/api/internal/history"
	"scribe/api/internal/search"
	"scribe/api/internal/session"
	"scribe/api/internal/store"
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

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, dataStore)

	var sessions app.SessionStore = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	var remote backup.Remote
	switch {
	case strings.TrimSpace(cfg.WebDAVURL) != "":
		remote = backup.NewWebDAV(cfg.WebDAVURL, cfg.WebDAVUsername, cfg.WebDAVPassword)
		log.Printf("Backup remote: WebDAV at %s", cfg.WebDAVURL)
	case strings.TrimSpace(cfg.S3Endpoint) != "":
		remote, err = backup.NewS3(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("s3 remote failed: %v", err)
		}
		log.Printf("Backup remote: S3 at %s", cfg.S3Endpoint)
	default:
		log.Printf("No backup remote configured")
	}

	backend := ai.NewClient(
		ai.BackendConfig{BaseURL: cfg.GeminiBaseURL, APIKey: cfg.GeminiAPIKey},
		ai.BackendConfig{BaseURL: cfg.OpenRouterBaseURL, APIKey: cfg.OpenRouterAPIKey},
	)

	service := app.New(cfg, app.Deps{
		Users:    authpw.NewService(dataStore),
		Trees:    filetree.New(dataStore),
		Sessions: sessions,
		Pipeline: ai.NewPipeline(backend, cfg.AIStepTimeout),
		History:  history.New(cfg.SnapshotsDir),
		Search:   searchService,
		Remote:   remote,
		DB:       dataStore,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the AI generation stream has no fixed bound;
		// per-step timeouts inside the pipeline cap worst-case latency.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Scribe API listening on %s", cfg.Addr)
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
