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

package geocode

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loadhunter/ingestion/internal/geo"
)

const (
	cacheKeyPrefix = "loadhunter:geo:"

	// hitTTL keeps resolved city/state coordinates for a month — they
	// don't move.
	hitTTL = 30 * 24 * time.Hour

	// missTTL negative-caches unresolvable locations long enough to stop
	// a busy origin from hammering the API, short enough that the
	// scheduler's retry job gets another shot the same day.
	missTTL = 6 * time.Hour

	missSentinel = "MISS"
)

// Lookuper is the upstream geocoder. Implemented by *Client; tests
// substitute their own.
type Lookuper interface {
	Lookup(ctx context.Context, location string) (*geo.Coordinates, error)
}

// Resolver is a read-through coordinate cache in front of a geocoding
// client. It is the injected collaborator the pipeline uses, so the core
// matching logic never touches Redis or the Maps API directly.
type Resolver struct {
	rdb    *redis.Client
	client Lookuper
}

// NewResolver creates a resolver caching in Redis.
func NewResolver(rdb *redis.Client, client Lookuper) *Resolver {
	return &Resolver{rdb: rdb, client: client}
}

// Resolve returns coordinates for a free-text location, consulting the
// cache first. An unresolved location returns nil without error; cache
// infrastructure failures degrade to a direct lookup.
func (r *Resolver) Resolve(ctx context.Context, location string) (*geo.Coordinates, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, nil
	}

	key := cacheKeyPrefix + normalize(location)

	cached, err := r.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == missSentinel {
			return nil, nil
		}
		var c geo.Coordinates
		if jsonErr := json.Unmarshal([]byte(cached), &c); jsonErr == nil && geo.Valid(c) {
			return &c, nil
		}
		// Corrupt cache entry — fall through to a fresh lookup.
		slog.Warn("discarding corrupt geocode cache entry", "location", location)
	case err != redis.Nil:
		slog.Warn("geocode cache read failed, falling back to API", "error", err)
	}

	coords, err := r.client.Lookup(ctx, location)
	if err != nil {
		return nil, err
	}

	if coords == nil {
		if err := r.rdb.Set(ctx, key, missSentinel, missTTL).Err(); err != nil {
			slog.Warn("geocode miss cache write failed", "error", err)
		}
		return nil, nil
	}

	payload, _ := json.Marshal(coords)
	if err := r.rdb.Set(ctx, key, payload, hitTTL).Err(); err != nil {
		slog.Warn("geocode cache write failed", "error", err)
	}

	return coords, nil
}

// Invalidate drops the cached entry for a location, used by the
// scheduler's geocode retry before re-resolving.
func (r *Resolver) Invalidate(ctx context.Context, location string) error {
	return r.rdb.Del(ctx, cacheKeyPrefix+normalize(location)).Err()
}

func normalize(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}
