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

// InsertMatch persists a match candidate. The (load_id, plan_id) pair is
// unique: re-evaluating a load (reparse, geocode retry) cannot produce a
// second row for the same plan. Returns whether a new row was created.
func (s *Store) InsertMatch(ctx context.Context, m models.Match) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO matches
			(load_id, plan_id, distance_miles, match_score, is_active, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (load_id, plan_id) DO NOTHING
	`, m.LoadID, m.PlanID, m.DistanceMiles, m.MatchScore, m.IsActive, m.MatchedAt)
	if err != nil {
		return false, fmt.Errorf("insert match (%s, %s): %w", m.LoadID, m.PlanID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RestoreSkippedMatches flips dismissed matches on active loads back to
// active. The dashboard's "skip" sets is_active = false; the scheduler
// runs this daily so skips don't outlive the day.
func (s *Store) RestoreSkippedMatches(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET is_active = TRUE
		WHERE is_active = FALSE
		  AND load_id IN (SELECT load_id FROM loads WHERE status = 'active')
	`)
	if err != nil {
		return 0, fmt.Errorf("restore skipped matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
