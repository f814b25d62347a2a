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

// Package catchup sweeps each dispatch mailbox on an interval, listing
// messages received within a lookback window and running any the dedup
// filter has not seen through the pipeline. It is the safety net for
// webhook notifications lost in transit: a load offer the webhook missed
// still gets ingested within one sweep interval.
package catchup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/dedup"
	"github.com/loadhunter/ingestion/internal/mailbox"
	"github.com/loadhunter/ingestion/internal/pipeline"
)

// Sweeper periodically reconciles the dispatch mailboxes against what
// the pipeline has processed.
type Sweeper struct {
	fetcher   *mailbox.Fetcher
	processor *pipeline.Processor
	filter    *dedup.Filter
	accounts  []config.AccountConfig
	interval  time.Duration
	lookback  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperConfig holds dependencies for the catch-up sweeper.
type SweeperConfig struct {
	Fetcher   *mailbox.Fetcher
	Processor *pipeline.Processor
	Filter    *dedup.Filter
	Accounts  []config.AccountConfig
	Interval  time.Duration
	Lookback  time.Duration
}

// NewSweeper creates a catch-up sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		fetcher:   cfg.Fetcher,
		processor: cfg.Processor,
		filter:    cfg.Filter,
		accounts:  cfg.Accounts,
		interval:  cfg.Interval,
		lookback:  cfg.Lookback,
	}
}

// SweepMailbox reconciles one mailbox now. Per-message failures are
// logged and skipped; one stuck email must not block the rest of the
// window.
func (s *Sweeper) SweepMailbox(ctx context.Context, account config.AccountConfig) error {
	since := time.Now().UTC().Add(-s.lookback)

	emails, err := s.fetcher.ListRecentMessages(ctx, account.Alias, account.Mailbox, since)
	if err != nil {
		return err
	}

	var processed int
	for _, email := range emails {
		isNew, err := s.filter.IsNew(ctx, email.EmailID)
		if err != nil {
			slog.Warn("dedup check failed during catch-up, proceeding", "error", err)
		} else if !isNew {
			continue
		}

		slog.Info("catch-up found missed email",
			"account", account.Alias,
			"email_id", email.EmailID,
			"subject", email.Subject,
		)

		if _, err := s.processor.Process(ctx, email); err != nil {
			slog.Error("catch-up pipeline failed",
				"email_id", email.EmailID,
				"error", err,
			)
			continue
		}
		processed++
	}

	if processed > 0 {
		slog.Info("catch-up sweep complete",
			"account", account.Alias,
			"recovered", processed,
		)
	}

	return nil
}

// Start runs the sweep loop for all accounts until the context is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				for _, account := range s.accounts {
					if err := s.SweepMailbox(loopCtx, account); err != nil {
						slog.Error("catch-up sweep failed",
							"account", account.Alias,
							"error", err,
						)
					}
				}
			}
		}
	}()

	slog.Info("catch-up sweep started", "interval", s.interval, "lookback", s.lookback)
}

// Stop shuts down the sweep loop.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
