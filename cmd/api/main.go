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

	"inkpress/api/internal/app"
	"inkpress/api/internal/auth"
	"inkpress/api/internal/config"
	"inkpress/api/internal/lifecycle"
	"inkpress/api/internal/seen"
	"inkpress/api/internal/store"
	"inkpress/api/internal/webhook"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	contentStore, err := store.NewMinioStore(cfg.StoreEndpoint, cfg.StoreAccessKey, cfg.StoreSecretKey, cfg.StoreBucket, cfg.StoreUseSSL)
	if err != nil {
		log.Fatalf("content store connection failed: %v", err)
	}
	if err := contentStore.EnsureBucket(ctx); err != nil {
		log.Fatalf("content store bucket setup failed: %v", err)
	}

	authenticator := auth.NewAuthenticator(cfg.ProofWindow)
	manager := lifecycle.NewManager(authenticator, contentStore)

	var dedupCache *seen.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for webhook delivery dedup")
		dedupCache, err = seen.NewCache(cfg.RedisURL, 24*time.Hour)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer dedupCache.Close()
	}

	var reconciler *webhook.Reconciler
	if dedupCache != nil {
		reconciler = webhook.NewReconciler(cfg.AlchemySigningKey, cfg.QuickNodeToken, manager, dedupCache)
	} else {
		reconciler = webhook.NewReconciler(cfg.AlchemySigningKey, cfg.QuickNodeToken, manager, nil)
	}

	service := app.New(cfg, authenticator, manager, reconciler)
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
		log.Printf("Inkpress API listening on %s", cfg.Addr)
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
