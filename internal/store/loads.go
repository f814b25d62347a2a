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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/models"
)

// Load statuses.
const (
	LoadStatusActive  = "active"
	LoadStatusExpired = "expired"
)

// InsertLoad persists a parsed load, assigning its LH-YYMMDD-### id. The
// insert is idempotent on the provider email id: replaying a notification
// returns the existing load id with inserted=false and burns no counter
// value.
func (s *Store) InsertLoad(ctx context.Context, load *models.ParsedLoad, expiresAt time.Time) (loadID string, inserted bool, err error) {
	// Fast path: this email has been persisted before.
	var existing string
	err = s.pool.QueryRow(ctx,
		`SELECT load_id FROM loads WHERE email_id = $1`, load.EmailID,
	).Scan(&existing)
	if err == nil {
		load.LoadID = existing
		return existing, false, nil
	}

	loadID, err = s.NextLoadID(ctx, time.Now())
	if err != nil {
		return "", false, err
	}
	load.LoadID = loadID

	parsed, err := json.Marshal(load)
	if err != nil {
		return "", false, fmt.Errorf("marshal parsed load: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO loads
			(load_id, email_id, parsed_data, vehicle_type, origin_city, origin_state, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email_id) DO NOTHING
	`, loadID, load.EmailID, parsed, load.VehicleType, load.OriginCity, load.OriginState, expiresAt)
	if err != nil {
		return "", false, fmt.Errorf("insert load %s: %w", loadID, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost a race with a concurrent replay of the same email.
		if err := s.pool.QueryRow(ctx,
			`SELECT load_id FROM loads WHERE email_id = $1`, load.EmailID,
		).Scan(&existing); err != nil {
			return "", false, fmt.Errorf("load vanished after conflict on email %s: %w", load.EmailID, err)
		}
		load.LoadID = existing
		return existing, false, nil
	}

	return loadID, true, nil
}

// SetOriginCoordinates records the geocoded origin for a load.
func (s *Store) SetOriginCoordinates(ctx context.Context, loadID string, c geo.Coordinates) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE loads
		SET origin_lat = $1, origin_lng = $2, updated_at = NOW()
		WHERE load_id = $3
	`, c.Lat, c.Lng, loadID)
	if err != nil {
		return fmt.Errorf("set origin coordinates for %s: %w", loadID, err)
	}
	return nil
}

// UpdateParsedData overwrites a load's parsed_data in place after a
// reparse, keeping the denormalized columns in step.
func (s *Store) UpdateParsedData(ctx context.Context, load *models.ParsedLoad) error {
	parsed, err := json.Marshal(load)
	if err != nil {
		return fmt.Errorf("marshal parsed load: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE loads
		SET parsed_data = $1, vehicle_type = $2, origin_city = $3, origin_state = $4,
		    updated_at = NOW()
		WHERE load_id = $5
	`, parsed, load.VehicleType, load.OriginCity, load.OriginState, load.LoadID)
	if err != nil {
		return fmt.Errorf("update parsed data for %s: %w", load.LoadID, err)
	}
	return nil
}

// UnresolvedLoad is an active load whose origin still lacks coordinates.
type UnresolvedLoad struct {
	LoadID      string
	OriginCity  string
	OriginState string
}

// ListUnresolvedLoads returns active loads with no origin coordinates,
// for the scheduler's geocode retry.
func (s *Store) ListUnresolvedLoads(ctx context.Context, limit int) ([]UnresolvedLoad, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT load_id, origin_city, origin_state
		FROM loads
		WHERE status = 'active' AND origin_lat IS NULL AND origin_city <> ''
		ORDER BY ingested_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved loads: %w", err)
	}
	defer rows.Close()

	var loads []UnresolvedLoad
	for rows.Next() {
		var l UnresolvedLoad
		if err := rows.Scan(&l.LoadID, &l.OriginCity, &l.OriginState); err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// GetParsedLoad fetches the parsed record for a load id.
func (s *Store) GetParsedLoad(ctx context.Context, loadID string) (*models.ParsedLoad, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT parsed_data FROM loads WHERE load_id = $1`, loadID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("get load %s: %w", loadID, err)
	}

	var load models.ParsedLoad
	if err := json.Unmarshal(raw, &load); err != nil {
		return nil, fmt.Errorf("unmarshal load %s: %w", loadID, err)
	}
	return &load, nil
}

// ExpireStaleLoads marks active loads past their expiry as expired,
// returning how many were swept.
func (s *Store) ExpireStaleLoads(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE loads
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("expire stale loads: %w", err)
	}
	return tag.RowsAffected(), nil
}
