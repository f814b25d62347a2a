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

// Package store provides Postgres persistence for Load Hunter: the
// raw-email archive, parsed loads, hunt plans, matches, mailbox
// subscriptions, and the per-day load-id counter.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides CRUD operations for Load Hunter records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool. It ensures the
// schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS raw_emails (
			id            BIGSERIAL PRIMARY KEY,
			email_id      TEXT NOT NULL UNIQUE,
			mailbox       TEXT DEFAULT '',
			subject       TEXT DEFAULT '',
			body_html     TEXT DEFAULT '',
			body_text     TEXT DEFAULT '',
			received_at   TIMESTAMPTZ,
			status        TEXT DEFAULT 'parsed',
			reject_reason TEXT DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_raw_emails_status ON raw_emails(status);

		CREATE TABLE IF NOT EXISTS loads (
			id           BIGSERIAL PRIMARY KEY,
			load_id      TEXT NOT NULL UNIQUE,
			email_id     TEXT NOT NULL UNIQUE,
			parsed_data  JSONB NOT NULL,
			vehicle_type TEXT DEFAULT '',
			origin_city  TEXT DEFAULT '',
			origin_state TEXT DEFAULT '',
			origin_lat   DOUBLE PRECISION,
			origin_lng   DOUBLE PRECISION,
			status       TEXT DEFAULT 'active',
			expires_at   TIMESTAMPTZ NOT NULL,
			ingested_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_loads_status ON loads(status);
		CREATE INDEX IF NOT EXISTS idx_loads_expires ON loads(expires_at);

		CREATE TABLE IF NOT EXISTS hunt_plans (
			id                  TEXT PRIMARY KEY,
			vehicle_id          TEXT DEFAULT '',
			origin_lat          DOUBLE PRECISION NOT NULL,
			origin_lng          DOUBLE PRECISION NOT NULL,
			pickup_radius_miles DOUBLE PRECISION NOT NULL,
			vehicle_size        TEXT NOT NULL,
			enabled             BOOLEAN DEFAULT TRUE,
			created_at          TIMESTAMPTZ DEFAULT NOW(),
			updated_at          TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_hunt_plans_enabled ON hunt_plans(enabled);

		CREATE TABLE IF NOT EXISTS matches (
			id             BIGSERIAL PRIMARY KEY,
			load_id        TEXT NOT NULL,
			plan_id        TEXT NOT NULL,
			distance_miles DOUBLE PRECISION NOT NULL,
			match_score    DOUBLE PRECISION DEFAULT 1.0,
			is_active      BOOLEAN DEFAULT TRUE,
			matched_at     TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(load_id, plan_id)
		);
		CREATE INDEX IF NOT EXISTS idx_matches_plan ON matches(plan_id);
		CREATE INDEX IF NOT EXISTS idx_matches_active ON matches(is_active);

		CREATE TABLE IF NOT EXISTS load_id_counters (
			day TEXT PRIMARY KEY,
			n   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS mailbox_subscriptions (
			id              BIGSERIAL PRIMARY KEY,
			subscription_id TEXT NOT NULL UNIQUE,
			account_alias   TEXT NOT NULL,
			mailbox         TEXT NOT NULL,
			client_state    TEXT NOT NULL,
			expires_at      TIMESTAMPTZ NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(account_alias, mailbox)
		);
	`)
	return err
}

// NextLoadID issues the next LH-YYMMDD-### identifier for the given day.
// The per-day counter row is bumped atomically, so concurrent ingestions
// can never collide within a day.
func (s *Store) NextLoadID(ctx context.Context, day time.Time) (string, error) {
	key := day.UTC().Format("060102")

	var n int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO load_id_counters (day, n) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET n = load_id_counters.n + 1
		RETURNING n
	`, key).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("bump load id counter: %w", err)
	}

	return fmt.Sprintf("LH-%s-%03d", key, n), nil
}

// Ping checks database connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
