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

// Load Hunter — Reparse Command
//
// Standalone CLI tool that re-runs the current extractor over archived
// raw emails, applying improved extraction rules retroactively. Parsed
// loads have their parsed_data overwritten in place; previously rejected
// emails that now extract cleanly become loads.
//
// Usage:
//
//	go run ./cmd/reparse/ [--status rejected] [--limit 500]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/dedup"
	"github.com/loadhunter/ingestion/internal/geocode"
	"github.com/loadhunter/ingestion/internal/pipeline"
	"github.com/loadhunter/ingestion/internal/queue"
	"github.com/loadhunter/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	statusFlag := flag.String("status", "", "Only reparse emails with this archive status (parsed, rejected; empty = all)")
	limitFlag := flag.Int("limit", 500, "Maximum number of archived emails to reparse")
	flag.Parse()

	if *statusFlag != "" && *statusFlag != store.EmailStatusParsed && *statusFlag != store.EmailStatusRejected {
		fmt.Fprintf(os.Stderr, "Error: invalid --status %q (want parsed or rejected)\n", *statusFlag)
		os.Exit(1)
	}

	slog.Info("starting reparse", "status", *statusFlag, "limit", *limitFlag)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.AlertsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	filter := dedup.NewFilter(rdb)
	resolver := geocode.NewResolver(rdb, geocode.NewClient(cfg.GeocodeAPIKey))

	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Store:      st,
		Resolver:   resolver,
		Publisher:  publisher,
		DefaultTTL: cfg.LoadDefaultTTL,
	})

	// --- Run Reparse ---
	emails, err := st.ListArchivedEmails(ctx, *statusFlag, *limitFlag)
	if err != nil {
		slog.Error("failed to list archived emails", "error", err)
		os.Exit(1)
	}

	var reparsed, recovered, rejected, failed, newMatches int
	for _, email := range emails {
		// Drop the seen marker so a provider redelivery after this rewrite
		// goes back through the pipeline instead of being deduped away.
		if err := filter.Forget(ctx, email.EmailID); err != nil {
			slog.Warn("dedup forget failed", "email_id", email.EmailID, "error", err)
		}

		result, err := processor.Reparse(ctx, email)
		if err != nil {
			slog.Error("reparse failed", "email_id", email.EmailID, "error", err)
			failed++
			continue
		}

		switch {
		case result.Rejected:
			rejected++
		case result.Replayed:
			reparsed++
		default:
			// A previously rejected email that now extracts cleanly.
			recovered++
		}
		newMatches += result.NewMatches
	}

	// --- Summary ---
	slog.Info("reparse complete",
		"total", len(emails),
		"reparsed", reparsed,
		"recovered", recovered,
		"still_rejected", rejected,
		"failed", failed,
		"new_matches", newMatches,
	)
}
