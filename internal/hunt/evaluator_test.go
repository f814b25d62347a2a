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

package hunt

import (
	"math"
	"testing"

	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/models"
)

// columbusOrigin is the geocoded pickup location used across the tests.
var columbusOrigin = geo.Coordinates{Lat: 39.9612, Lng: -82.9988}

func vanLoad() *models.ParsedLoad {
	return &models.ParsedLoad{
		LoadID:      "LH-260901-001",
		VehicleType: "VAN",
		OriginCity:  "Columbus",
		OriginState: "OH",
	}
}

// plan returns an enabled plan centered near Dayton, about 65 miles out.
func plan(id string, radius float64, vehicle string) models.HuntPlan {
	return models.HuntPlan{
		ID:                id,
		VehicleID:         "unit-" + id,
		OriginLat:         39.7589,
		OriginLng:         -84.1916,
		PickupRadiusMiles: radius,
		VehicleSize:       vehicle,
		Enabled:           true,
	}
}

func TestEvaluate_FanOut(t *testing.T) {
	plans := []models.HuntPlan{
		plan("p1", 100, "VAN"),
		plan("p2", 100, "VAN"),
		plan("p3", 100, "VAN"),
	}

	matches := Evaluate(vanLoad(), columbusOrigin, plans)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want one per qualifying plan (3)", len(matches))
	}
	seen := map[string]bool{}
	for _, m := range matches {
		seen[m.PlanID] = true
		if m.LoadID != "LH-260901-001" {
			t.Errorf("LoadID = %q", m.LoadID)
		}
		if m.MatchScore != 1.0 {
			t.Errorf("MatchScore = %v, want 1.0", m.MatchScore)
		}
		if !m.IsActive {
			t.Error("IsActive = false, want true")
		}
		if m.DistanceMiles <= 0 || m.DistanceMiles > 100 {
			t.Errorf("DistanceMiles = %.2f, out of expected range", m.DistanceMiles)
		}
	}
	if len(seen) != 3 {
		t.Errorf("plan ids not distinct: %v", seen)
	}
}

func TestEvaluate_Filters(t *testing.T) {
	disabled := plan("disabled", 100, "VAN")
	disabled.Enabled = false

	tests := []struct {
		name  string
		plans []models.HuntPlan
		want  int
	}{
		{"disabled plan excluded", []models.HuntPlan{disabled}, 0},
		{"outside radius", []models.HuntPlan{plan("tight", 30, "VAN")}, 0},
		{"vehicle mismatch", []models.HuntPlan{plan("sprinter", 100, "SPRINTER")}, 0},
		{"vehicle match is exact not substring", []models.HuntPlan{plan("cargo", 100, "CARGO VAN")}, 0},
		{"all criteria met", []models.HuntPlan{plan("ok", 100, "VAN")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := Evaluate(vanLoad(), columbusOrigin, tt.plans)
			if len(matches) != tt.want {
				t.Errorf("got %d matches, want %d", len(matches), tt.want)
			}
		})
	}
}

// TestEvaluate_MalformedPlanIsolated verifies a plan with unusable
// coordinates is skipped and the result equals evaluation without it.
func TestEvaluate_MalformedPlanIsolated(t *testing.T) {
	bad := plan("bad", 100, "VAN")
	bad.OriginLat = math.NaN()

	withBad := Evaluate(vanLoad(), columbusOrigin, []models.HuntPlan{bad, plan("good", 100, "VAN")})
	without := Evaluate(vanLoad(), columbusOrigin, []models.HuntPlan{plan("good", 100, "VAN")})

	if len(withBad) != len(without) || len(withBad) != 1 {
		t.Fatalf("got %d matches with malformed plan present, %d without; want 1 and 1", len(withBad), len(without))
	}
	if withBad[0].PlanID != "good" {
		t.Errorf("PlanID = %q, want good", withBad[0].PlanID)
	}
}

func TestEvaluate_UnresolvedOrigin(t *testing.T) {
	plans := []models.HuntPlan{plan("p1", 1e9, "VAN")}

	// A NaN origin yields no matches regardless of radius.
	if got := Evaluate(vanLoad(), geo.Coordinates{Lat: math.NaN()}, plans); got != nil {
		t.Errorf("NaN origin: got %d matches, want none", len(got))
	}

	// The zero value is a real coordinate (0,0) and evaluates normally.
	if got := Evaluate(vanLoad(), geo.Coordinates{}, plans); len(got) != 1 {
		t.Errorf("zero-value origin with unbounded radius: got %d matches, want 1", len(got))
	}
}
