// Copyright (c) 2026 Load Hunter Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Load Hunter — Ingestion Service
//
// Entry point for the Go ingestion service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the extract → geocode → evaluate pipeline
//  4. Creates inbox subscriptions for each configured dispatch mailbox
//  5. Runs the catch-up sweep and cron maintenance jobs
//  6. Serves the webhook endpoint for mail change notifications
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/loadhunter/ingestion/internal/catchup"
	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/dedup"
	"github.com/loadhunter/ingestion/internal/geocode"
	"github.com/loadhunter/ingestion/internal/mailbox"
	"github.com/loadhunter/ingestion/internal/pipeline"
	"github.com/loadhunter/ingestion/internal/queue"
	"github.com/loadhunter/ingestion/internal/scheduler"
	"github.com/loadhunter/ingestion/internal/store"
	"github.com/loadhunter/ingestion/internal/webhook"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Load Hunter ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"accounts", len(cfg.Accounts),
		"catchup_interval", cfg.CatchupInterval,
		"load_default_ttl", cfg.LoadDefaultTTL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.AlertsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Store (Postgres) ---
	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Geocoding ---
	if cfg.GeocodeAPIKey == "" {
		slog.Warn("no geocoding API key configured — loads will stay unresolved and produce no matches")
	}
	resolver := geocode.NewResolver(rdb, geocode.NewClient(cfg.GeocodeAPIKey))

	// --- Build OAuth2 clients per account ---
	graphClients := make(map[string]*http.Client)
	for _, account := range cfg.Accounts {
		if account.Provider != "m365" {
			slog.Warn("skipping account with unsupported provider",
				"account", account.Alias,
				"provider", account.Provider,
			)
			continue
		}

		creds := &clientcredentials.Config{
			ClientID:     account.ClientID,
			ClientSecret: account.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", account.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		graphClients[account.Alias] = creds.Client(ctx)
	}

	fetcher := mailbox.NewFetcher(graphClients, graphBaseURL)

	// --- Pipeline ---
	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Store:      st,
		Resolver:   resolver,
		Publisher:  publisher,
		DefaultTTL: cfg.LoadDefaultTTL,
	})

	// --- Webhook URL ---
	if cfg.WebhookURL == "" {
		slog.Error("WEBHOOK_URL is required — mail subscriptions need a public webhook endpoint")
		os.Exit(1)
	}

	// --- Subscriber ---
	subscriber := mailbox.NewSubscriber(mailbox.SubscriberConfig{
		Clients:      graphClients,
		Accounts:     cfg.Accounts,
		Store:        st,
		GraphBaseURL: graphBaseURL,
		WebhookURL:   cfg.WebhookURL,
	})

	// --- Phase 1: Start webhook server BEFORE registering subscriptions ---
	// Graph validates the endpoint immediately when creating a subscription.
	handler := webhook.NewHandler(fetcher, processor, filter, st)
	ready, err := webhook.Serve(ctx, cfg.WebhookPort, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("webhook server ready, proceeding to register subscriptions")

	// --- Phase 2: Create mailbox subscriptions ---
	if err := subscriber.EnsureAll(ctx); err != nil {
		slog.Error("failed to create mailbox subscriptions", "error", err)
		os.Exit(1)
	}

	// --- Phase 3: Catch-up sweep + maintenance jobs ---
	sweeper := catchup.NewSweeper(catchup.SweeperConfig{
		Fetcher:   fetcher,
		Processor: processor,
		Filter:    filter,
		Accounts:  cfg.Accounts,
		Interval:  cfg.CatchupInterval,
		Lookback:  cfg.CatchupLookback,
	})
	sweeper.Start(ctx)

	sched := scheduler.New(scheduler.SchedulerConfig{
		Store:         st,
		Resolver:      resolver,
		Processor:     processor,
		Subscriber:    subscriber,
		RenewalBuffer: cfg.RenewalBuffer,
	})
	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		sweeper.Stop()
		sched.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("ingestion service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("ingestion service stopped")
}
