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

// Load Hunter — Hunt Plan Seeder
//
// Writes a hunt plan row directly, for environments where the dashboard
// is not yet deployed and for smoke-testing the matching path end to end.
//
// Usage:
//
//	go run ./cmd/huntplan/ --id plan-1 --vehicle-id unit-12 \
//	    --lat 39.7589 --lng -84.1916 --radius 100 --size "CARGO VAN"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/models"
	"github.com/loadhunter/ingestion/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	idFlag := flag.String("id", "", "Plan id (required)")
	vehicleIDFlag := flag.String("vehicle-id", "", "Vehicle/unit identifier")
	latFlag := flag.Float64("lat", 0, "Plan origin latitude")
	lngFlag := flag.Float64("lng", 0, "Plan origin longitude")
	radiusFlag := flag.Float64("radius", 0, "Pickup radius in miles (required)")
	sizeFlag := flag.String("size", "", "Vehicle size to match, e.g. CARGO VAN (required)")
	enabledFlag := flag.Bool("enabled", true, "Whether the plan is active")
	flag.Parse()

	if *idFlag == "" || *sizeFlag == "" || *radiusFlag <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --id, --size, and a positive --radius are required")
		flag.Usage()
		os.Exit(1)
	}
	if !geo.Valid(geo.Coordinates{Lat: *latFlag, Lng: *lngFlag}) {
		fmt.Fprintf(os.Stderr, "Error: invalid origin coordinates (%f, %f)\n", *latFlag, *lngFlag)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// Extracted vehicle types are uppercase with collapsed whitespace, and
	// plan matching is exact string equality, so store the same canonical
	// form.
	size := strings.ToUpper(strings.Join(strings.Fields(*sizeFlag), " "))

	plan := models.HuntPlan{
		ID:                *idFlag,
		VehicleID:         *vehicleIDFlag,
		OriginLat:         *latFlag,
		OriginLng:         *lngFlag,
		PickupRadiusMiles: *radiusFlag,
		VehicleSize:       size,
		Enabled:           *enabledFlag,
	}
	if err := st.UpsertHuntPlan(ctx, plan); err != nil {
		slog.Error("failed to write hunt plan", "plan_id", plan.ID, "error", err)
		os.Exit(1)
	}

	slog.Info("hunt plan written",
		"plan_id", plan.ID,
		"vehicle_id", plan.VehicleID,
		"radius_miles", plan.PickupRadiusMiles,
		"vehicle_size", plan.VehicleSize,
		"enabled", plan.Enabled,
	)
}
