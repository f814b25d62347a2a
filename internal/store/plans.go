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
	"fmt"

	"github.com/loadhunter/ingestion/internal/models"
)

// ListHuntPlans returns every hunt plan, disabled ones included — the
// evaluator owns the enabled gate so disabled-plan exclusion is decided
// in exactly one place.
func (s *Store) ListHuntPlans(ctx context.Context) ([]models.HuntPlan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, vehicle_id, origin_lat, origin_lng, pickup_radius_miles,
		       vehicle_size, enabled
		FROM hunt_plans
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list hunt plans: %w", err)
	}
	defer rows.Close()

	var plans []models.HuntPlan
	for rows.Next() {
		var p models.HuntPlan
		if err := rows.Scan(&p.ID, &p.VehicleID, &p.OriginLat, &p.OriginLng,
			&p.PickupRadiusMiles, &p.VehicleSize, &p.Enabled); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// UpsertHuntPlan writes a plan row. The dashboard owns plan editing; the
// huntplan CLI uses this to seed plans where no dashboard is deployed.
func (s *Store) UpsertHuntPlan(ctx context.Context, p models.HuntPlan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hunt_plans
			(id, vehicle_id, origin_lat, origin_lng, pickup_radius_miles, vehicle_size, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			vehicle_id          = EXCLUDED.vehicle_id,
			origin_lat          = EXCLUDED.origin_lat,
			origin_lng          = EXCLUDED.origin_lng,
			pickup_radius_miles = EXCLUDED.pickup_radius_miles,
			vehicle_size        = EXCLUDED.vehicle_size,
			enabled             = EXCLUDED.enabled,
			updated_at          = NOW()
	`, p.ID, p.VehicleID, p.OriginLat, p.OriginLng, p.PickupRadiusMiles, p.VehicleSize, p.Enabled)
	if err != nil {
		return fmt.Errorf("upsert hunt plan %s: %w", p.ID, err)
	}
	return nil
}
