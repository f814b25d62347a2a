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

// Package queue publishes match alerts to a Redis list. The dashboard
// notifier drains the list and raises the audio/visual alert for the
// dispatcher whose hunt plan fired.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/loadhunter/ingestion/internal/models"
)

// Publisher sends match alerts to the configured Redis queue.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// MatchAlert is the message the dashboard notifier consumes for each
// newly created match.
type MatchAlert struct {
	AlertID       string   `json:"alert_id"`
	LoadID        string   `json:"load_id"`
	PlanID        string   `json:"plan_id"`
	VehicleID     string   `json:"vehicle_id,omitempty"`
	VehicleType   string   `json:"vehicle_type"`
	OriginCity    string   `json:"origin_city"`
	OriginState   string   `json:"origin_state"`
	DestCity      string   `json:"dest_city"`
	DestState     string   `json:"dest_state"`
	DistanceMiles float64  `json:"distance_miles"`
	Rate          *float64 `json:"rate,omitempty"`
	BrokerEmail   string   `json:"broker_email"`
	MatchedAt     string   `json:"matched_at"` // RFC 3339
}

// PublishMatch serialises a match alert and LPUSHes it onto the queue.
func (p *Publisher) PublishMatch(ctx context.Context, load *models.ParsedLoad, match models.Match, vehicleID string) error {
	alert := MatchAlert{
		AlertID:       uuid.New().String(),
		LoadID:        match.LoadID,
		PlanID:        match.PlanID,
		VehicleID:     vehicleID,
		VehicleType:   load.VehicleType,
		OriginCity:    load.OriginCity,
		OriginState:   load.OriginState,
		DestCity:      load.DestinationCity,
		DestState:     load.DestinationState,
		DistanceMiles: match.DistanceMiles,
		Rate:          load.Rate,
		BrokerEmail:   load.BrokerEmail,
		MatchedAt:     match.MatchedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal match alert: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published match alert",
		"alert_id", alert.AlertID,
		"load_id", alert.LoadID,
		"plan_id", alert.PlanID,
		"distance_miles", alert.DistanceMiles,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
