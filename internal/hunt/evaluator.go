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

// Package hunt evaluates parsed loads against dispatcher hunt plans. A
// plan matches when the load origin falls inside the plan's pickup radius
// and the vehicle types are string-equal. Evaluation is plan-independent:
// a malformed plan is skipped without affecting the others.
package hunt

import (
	"log/slog"
	"time"

	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/models"
)

// Evaluate scores one load against the full plan set and returns the
// match candidates. Fan-out is intentional: a load within radius of N
// enabled plans with the right vehicle type yields N matches, one row per
// plan, which is what the dashboard renders.
//
// origin is the load's geocoded pickup location. If it is unresolved or
// invalid, geographic evaluation is impossible and the result is empty —
// a missing coordinate is never treated as distance zero.
func Evaluate(load *models.ParsedLoad, origin geo.Coordinates, plans []models.HuntPlan) []models.Match {
	if !geo.Valid(origin) {
		return nil
	}

	now := time.Now().UTC()
	var matches []models.Match

	for _, plan := range plans {
		if !plan.Enabled {
			continue
		}

		planOrigin := geo.Coordinates{Lat: plan.OriginLat, Lng: plan.OriginLng}
		if !geo.Valid(planOrigin) {
			slog.Warn("hunt plan has invalid origin coordinates, skipping",
				"plan_id", plan.ID,
				"lat", plan.OriginLat,
				"lng", plan.OriginLng,
			)
			continue
		}

		dist, inRadius := geo.WithinRadius(planOrigin, origin, plan.PickupRadiusMiles)
		if !inRadius {
			continue
		}

		if plan.VehicleSize != load.VehicleType {
			continue
		}

		matches = append(matches, models.Match{
			LoadID:        load.LoadID,
			PlanID:        plan.ID,
			DistanceMiles: dist,
			MatchScore:    1.0,
			IsActive:      true,
			MatchedAt:     now,
		})
	}

	return matches
}
