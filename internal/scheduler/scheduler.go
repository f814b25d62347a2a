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

// Package scheduler wires up the cron maintenance jobs: expiring stale
// loads, restoring skipped matches, retrying unresolved geocodes, and
// renewing mailbox subscriptions.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loadhunter/ingestion/internal/geocode"
	"github.com/loadhunter/ingestion/internal/mailbox"
	"github.com/loadhunter/ingestion/internal/pipeline"
	"github.com/loadhunter/ingestion/internal/store"
)

// geocodeRetryBatch bounds how many unresolved loads one retry pass
// re-resolves, keeping a Maps API outage from turning into a burst.
const geocodeRetryBatch = 50

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron          *cron.Cron
	store         *store.Store
	resolver      *geocode.Resolver
	processor     *pipeline.Processor
	subscriber    *mailbox.Subscriber
	renewalBuffer time.Duration
}

// SchedulerConfig holds dependencies for the scheduler.
type SchedulerConfig struct {
	Store         *store.Store
	Resolver      *geocode.Resolver
	Processor     *pipeline.Processor
	Subscriber    *mailbox.Subscriber
	RenewalBuffer time.Duration
}

// New creates the maintenance scheduler.
func New(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		store:         cfg.Store,
		resolver:      cfg.Resolver,
		processor:     cfg.Processor,
		subscriber:    cfg.Subscriber,
		renewalBuffer: cfg.RenewalBuffer,
	}
}

// Start registers all jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context)
	}{
		{"@every 1m", "expire_loads", s.expireLoads},
		{"@daily", "restore_skipped_matches", s.restoreSkippedMatches},
		{"@every 15m", "geocode_retry", s.retryGeocodes},
		{"@every 1h", "renew_subscriptions", s.renewSubscriptions},
	}

	for _, job := range jobs {
		fn := job.fn
		if _, err := s.cron.AddFunc(job.spec, func() { fn(ctx) }); err != nil {
			return err
		}
		slog.Info("scheduled maintenance job", "job", job.name, "spec", job.spec)
	}

	s.cron.Start()
	return nil
}

// Stop shuts down the cron loop, waiting for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// expireLoads marks loads past their expiry. Loads without an Expires:
// header received a default lifetime at ingestion, so every load ages out.
func (s *Scheduler) expireLoads(ctx context.Context) {
	n, err := s.store.ExpireStaleLoads(ctx)
	if err != nil {
		slog.Error("load expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("expired stale loads", "count", n)
	}
}

// restoreSkippedMatches undoes dashboard "skip" dismissals once a day so
// a skipped match on a still-active load resurfaces.
func (s *Scheduler) restoreSkippedMatches(ctx context.Context) {
	n, err := s.store.RestoreSkippedMatches(ctx)
	if err != nil {
		slog.Error("skipped-match reset failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("restored skipped matches", "count", n)
	}
}

// retryGeocodes re-resolves origins for active loads that still lack
// coordinates, then runs match evaluation for any that resolve.
func (s *Scheduler) retryGeocodes(ctx context.Context) {
	unresolved, err := s.store.ListUnresolvedLoads(ctx, geocodeRetryBatch)
	if err != nil {
		slog.Error("list unresolved loads failed", "error", err)
		return
	}

	for _, ul := range unresolved {
		location := ul.OriginCity
		if ul.OriginState != "" {
			location += ", " + ul.OriginState
		}

		// Drop any negative-cache entry so the API is actually retried.
		if err := s.resolver.Invalidate(ctx, location); err != nil {
			slog.Warn("geocode cache invalidate failed", "location", location, "error", err)
		}

		coords, err := s.resolver.Resolve(ctx, location)
		if err != nil {
			slog.Warn("geocode retry failed", "load_id", ul.LoadID, "error", err)
			continue
		}
		if coords == nil {
			continue
		}

		if err := s.store.SetOriginCoordinates(ctx, ul.LoadID, *coords); err != nil {
			slog.Error("set coordinates failed", "load_id", ul.LoadID, "error", err)
			continue
		}

		load, err := s.store.GetParsedLoad(ctx, ul.LoadID)
		if err != nil {
			slog.Error("fetch load for late evaluation failed", "load_id", ul.LoadID, "error", err)
			continue
		}

		if _, err := s.processor.Evaluate(ctx, load, *coords); err != nil {
			slog.Error("late match evaluation failed", "load_id", ul.LoadID, "error", err)
		}
	}
}

// renewSubscriptions extends mailbox subscriptions nearing expiry.
func (s *Scheduler) renewSubscriptions(ctx context.Context) {
	s.subscriber.RenewExpiring(ctx, s.renewalBuffer)
}
