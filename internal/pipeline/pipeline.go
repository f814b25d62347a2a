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

// Package pipeline runs one email through the full ingestion flow:
// extract the load, geocode its origin, evaluate it against the hunt
// plans, persist the results, and publish alerts for new matches. The
// webhook handler, the catch-up sweep, and the reparse tool all feed
// this one path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/hunt"
	"github.com/loadhunter/ingestion/internal/models"
	"github.com/loadhunter/ingestion/internal/sylectus"
)

// Store is the persistence surface the processor needs. Implemented by
// *store.Store.
type Store interface {
	ArchiveEmail(ctx context.Context, email models.InboundEmail, status, rejectReason string) error
	InsertLoad(ctx context.Context, load *models.ParsedLoad, expiresAt time.Time) (string, bool, error)
	UpdateParsedData(ctx context.Context, load *models.ParsedLoad) error
	SetOriginCoordinates(ctx context.Context, loadID string, c geo.Coordinates) error
	ListHuntPlans(ctx context.Context) ([]models.HuntPlan, error)
	InsertMatch(ctx context.Context, m models.Match) (bool, error)
}

// Resolver turns a free-text origin into coordinates, or nil when it
// cannot. Implemented by *geocode.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, location string) (*geo.Coordinates, error)
}

// AlertPublisher announces newly created matches. Implemented by
// *queue.Publisher.
type AlertPublisher interface {
	PublishMatch(ctx context.Context, load *models.ParsedLoad, match models.Match, vehicleID string) error
}

// Processor orchestrates the ingestion flow for one email at a time.
// Each email's processing is independent; callers may run processors
// concurrently across emails without coordination.
type Processor struct {
	store      Store
	resolver   Resolver
	publisher  AlertPublisher
	defaultTTL time.Duration
}

// ProcessorConfig holds dependencies for the processor.
type ProcessorConfig struct {
	Store      Store
	Resolver   Resolver
	Publisher  AlertPublisher
	DefaultTTL time.Duration // load lifetime when the email has no Expires: header
}

// NewProcessor creates a pipeline processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = 90 * time.Minute
	}
	return &Processor{
		store:      cfg.Store,
		resolver:   cfg.Resolver,
		publisher:  cfg.Publisher,
		defaultTTL: ttl,
	}
}

// Result summarises one email's trip through the pipeline.
type Result struct {
	Rejected   bool
	LoadID     string
	Replayed   bool // the email had been persisted before
	Unresolved bool // origin could not be geocoded; matching skipped
	NewMatches int
}

// Process ingests one email. Extraction rejection is a data outcome, not
// an error: the raw email is archived with the reason and a Rejected
// result is returned. Errors mean infrastructure failed.
func (p *Processor) Process(ctx context.Context, email models.InboundEmail) (*Result, error) {
	return p.run(ctx, email, false)
}

// Reparse re-runs the current extractor over an archived email,
// overwriting the stored parsed_data in place, then re-evaluates the
// hunt plans. Matches already recorded are untouched; only pairs that
// qualify now and didn't before produce new rows.
func (p *Processor) Reparse(ctx context.Context, email models.InboundEmail) (*Result, error) {
	return p.run(ctx, email, true)
}

func (p *Processor) run(ctx context.Context, email models.InboundEmail, reparse bool) (*Result, error) {
	load, err := sylectus.Extract(email)
	if errors.Is(err, sylectus.ErrMissingBrokerEmail) {
		slog.Warn("rejecting email: missing broker email",
			"email_id", email.EmailID,
			"subject", email.Subject,
		)
		if archiveErr := p.store.ArchiveEmail(ctx, email, "rejected", err.Error()); archiveErr != nil {
			return nil, archiveErr
		}
		return &Result{Rejected: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extract email %s: %w", email.EmailID, err)
	}

	if err := p.store.ArchiveEmail(ctx, email, "parsed", ""); err != nil {
		return nil, err
	}

	expiresAt := p.expiry(load, email)
	loadID, inserted, err := p.store.InsertLoad(ctx, load, expiresAt)
	if err != nil {
		return nil, err
	}

	result := &Result{LoadID: loadID, Replayed: !inserted}

	if !inserted {
		if !reparse {
			// Duplicate notification for a load we already hold.
			slog.Debug("email already ingested", "email_id", email.EmailID, "load_id", loadID)
			return result, nil
		}
		if err := p.store.UpdateParsedData(ctx, load); err != nil {
			return nil, err
		}
		slog.Info("load reparsed", "load_id", loadID, "email_id", email.EmailID)
	}

	slog.Info("load ingested",
		"load_id", loadID,
		"email_id", email.EmailID,
		"vehicle_type", load.VehicleType,
		"origin", load.Origin(),
		"expires_at", expiresAt,
	)

	origin, err := p.resolver.Resolve(ctx, load.Origin())
	if err != nil {
		// Geocoder trouble excludes the load from matching for now; the
		// scheduler's retry job picks it up once the service recovers.
		slog.Warn("geocode failed, skipping match evaluation",
			"load_id", loadID,
			"origin", load.Origin(),
			"error", err,
		)
		result.Unresolved = true
		return result, nil
	}
	if origin == nil {
		slog.Info("origin unresolved, skipping match evaluation",
			"load_id", loadID,
			"origin", load.Origin(),
		)
		result.Unresolved = true
		return result, nil
	}

	if err := p.store.SetOriginCoordinates(ctx, loadID, *origin); err != nil {
		return nil, err
	}

	created, err := p.Evaluate(ctx, load, *origin)
	if err != nil {
		return nil, err
	}
	result.NewMatches = created

	return result, nil
}

// Evaluate scores a load against the current plan set, persisting and
// announcing every newly created match. Also used directly by the
// scheduler's geocode retry once late coordinates arrive.
func (p *Processor) Evaluate(ctx context.Context, load *models.ParsedLoad, origin geo.Coordinates) (int, error) {
	plans, err := p.store.ListHuntPlans(ctx)
	if err != nil {
		return 0, err
	}

	vehicleByPlan := make(map[string]string, len(plans))
	for _, plan := range plans {
		vehicleByPlan[plan.ID] = plan.VehicleID
	}

	created := 0
	for _, match := range hunt.Evaluate(load, origin, plans) {
		isNew, err := p.store.InsertMatch(ctx, match)
		if err != nil {
			slog.Error("persist match failed",
				"load_id", match.LoadID,
				"plan_id", match.PlanID,
				"error", err,
			)
			continue
		}
		if !isNew {
			continue
		}
		created++

		if err := p.publisher.PublishMatch(ctx, load, match, vehicleByPlan[match.PlanID]); err != nil {
			slog.Error("publish match alert failed",
				"load_id", match.LoadID,
				"plan_id", match.PlanID,
				"error", err,
			)
		}
	}

	if created > 0 {
		slog.Info("matches created", "load_id", load.LoadID, "count", created)
	}

	return created, nil
}

// expiry picks the load's lifetime: the parsed Expires: header, or the
// default TTL from ingestion time when absent.
func (p *Processor) expiry(load *models.ParsedLoad, email models.InboundEmail) time.Time {
	if load.ExpiresAt != nil {
		return load.ExpiresAt.UTC()
	}
	base := time.Now().UTC()
	if email.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, email.ReceivedAt); err == nil {
			base = t.UTC()
		}
	}
	return base.Add(p.defaultTTL)
}
