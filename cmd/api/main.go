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

	"cardvault/api/internal/app"
	"cardvault/api/internal/config"
	"cardvault/api/internal/enrich"
	"cardvault/api/internal/search"
	"cardvault/api/internal/store"
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

	pgIndex := search.NewPgIndex(db)
	backends := []search.Backend{pgIndex}
	var meiliBackend *search.Meili
	var rankedBackend search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliBackend = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meiliBackend.Close()
		backends = append(backends, meiliBackend)
		rankedBackend = meiliBackend
	}

	indexer := search.NewIndexer(dataStore, backends...)
	searcher := search.NewService(pgIndex, rankedBackend)

	var enricher app.Enricher
	if strings.TrimSpace(cfg.EnrichURL) != "" {
		limiter := enrich.NewRateLimit(cfg.EnrichRateLimit, time.Minute)
		enricher = enrich.NewClient(cfg.EnrichURL, cfg.EnrichAPIKey, limiter)
		log.Printf("enrichment enabled against %s", cfg.EnrichURL)
	} else {
		log.Printf("enrichment disabled (no ENRICH_URL)")
	}

	service := app.New(dataStore, searcher, indexer, enricher)

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
		log.Printf("CardVault API listening on %s", cfg.Addr)
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
