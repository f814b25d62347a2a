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

// Package dedup provides email deduplication using Redis SETNX with TTL.
// The same broker email can reach the pipeline twice — once from the
// webhook notification and again from the catch-up sweep's overlapping
// lookback window — and must be processed only once.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen email ID. Load offers go
	// stale within hours; 24h comfortably covers every catch-up overlap.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "loadhunter:seen:"
)

// Filter tracks which provider email IDs have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the email ID has NOT been seen before.
// If true, the ID is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, emailID string) (bool, error) {
	key := fmt.Sprintf("%s%s", keyPrefix, emailID)

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

// Forget drops the seen marker for an email ID so the reparse tool can
// push an archived email back through the pipeline.
func (f *Filter) Forget(ctx context.Context, emailID string) error {
	if err := f.rdb.Del(ctx, keyPrefix+emailID).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
