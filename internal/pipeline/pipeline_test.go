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

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loadhunter/ingestion/internal/geo"
	"github.com/loadhunter/ingestion/internal/models"
)

type archivedEmail struct {
	status string
	reason string
}

type mockStore struct {
	mu       sync.Mutex
	archived map[string]archivedEmail
	loads    map[string]string // email id -> load id
	updated  []string          // load ids passed to UpdateParsedData
	coords   map[string]geo.Coordinates
	plans    []models.HuntPlan
	matches  map[string]bool // "loadID/planID"

	insertMatchErr error
	nextID         int
}

func newMockStore() *mockStore {
	return &mockStore{
		archived: map[string]archivedEmail{},
		loads:    map[string]string{},
		coords:   map[string]geo.Coordinates{},
		matches:  map[string]bool{},
	}
}

func (m *mockStore) ArchiveEmail(_ context.Context, email models.InboundEmail, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived[email.EmailID] = archivedEmail{status: status, reason: reason}
	return nil
}

func (m *mockStore) InsertLoad(_ context.Context, load *models.ParsedLoad, _ time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.loads[load.EmailID]; ok {
		load.LoadID = id
		return id, false, nil
	}
	m.nextID++
	id := fmt.Sprintf("LH-260901-%03d", m.nextID)
	m.loads[load.EmailID] = id
	load.LoadID = id
	return id, true, nil
}

func (m *mockStore) UpdateParsedData(_ context.Context, load *models.ParsedLoad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, load.LoadID)
	return nil
}

func (m *mockStore) SetOriginCoordinates(_ context.Context, loadID string, c geo.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coords[loadID] = c
	return nil
}

func (m *mockStore) ListHuntPlans(context.Context) ([]models.HuntPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plans, nil
}

func (m *mockStore) InsertMatch(_ context.Context, match models.Match) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertMatchErr != nil {
		return false, m.insertMatchErr
	}
	key := match.LoadID + "/" + match.PlanID
	if m.matches[key] {
		return false, nil
	}
	m.matches[key] = true
	return true, nil
}

type mockResolver struct {
	coords *geo.Coordinates
	err    error
	calls  int
}

func (m *mockResolver) Resolve(context.Context, string) (*geo.Coordinates, error) {
	m.calls++
	return m.coords, m.err
}

type mockPublisher struct {
	mu     sync.Mutex
	alerts []models.Match
}

func (m *mockPublisher) PublishMatch(_ context.Context, _ *models.ParsedLoad, match models.Match, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, match)
	return nil
}

const testSubject = `VAN needed from Columbus, OH to Dayton, OH 75 miles Bid on Order #85174 Posted by Acme (broker@acme.com)`

func testEmail() models.InboundEmail {
	return models.InboundEmail{
		EmailID:  "msg-100",
		Mailbox:  "dispatch@example.com",
		Subject:  testSubject,
		BodyText: "Posted Amount: $500\n",
	}
}

// columbusCoords is what the resolver hands back for "Columbus, OH".
var columbusCoords = geo.Coordinates{Lat: 39.9612, Lng: -82.9988}

func daytonPlan(id string) models.HuntPlan {
	return models.HuntPlan{
		ID:                id,
		VehicleID:         "unit-" + id,
		OriginLat:         39.7589,
		OriginLng:         -84.1916,
		PickupRadiusMiles: 100,
		VehicleSize:       "VAN",
		Enabled:           true,
	}
}

func newTestProcessor(store *mockStore, resolver *mockResolver, pub *mockPublisher) *Processor {
	return NewProcessor(ProcessorConfig{
		Store:      store,
		Resolver:   resolver,
		Publisher:  pub,
		DefaultTTL: 90 * time.Minute,
	})
}

func TestProcess_FullFlow(t *testing.T) {
	store := newMockStore()
	store.plans = []models.HuntPlan{daytonPlan("p1"), daytonPlan("p2")}
	resolver := &mockResolver{coords: &columbusCoords}
	pub := &mockPublisher{}

	result, err := newTestProcessor(store, resolver, pub).Process(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Rejected || result.Replayed || result.Unresolved {
		t.Errorf("result flags = %+v, want clean ingest", result)
	}
	if result.LoadID == "" {
		t.Fatal("empty load id")
	}
	if result.NewMatches != 2 {
		t.Errorf("NewMatches = %d, want 2", result.NewMatches)
	}

	if a := store.archived["msg-100"]; a.status != "parsed" {
		t.Errorf("archived status = %q, want parsed", a.status)
	}
	if got := store.coords[result.LoadID]; got != columbusCoords {
		t.Errorf("stored coords = %+v, want %+v", got, columbusCoords)
	}
	if len(pub.alerts) != 2 {
		t.Errorf("published %d alerts, want 2", len(pub.alerts))
	}
	for _, alert := range pub.alerts {
		if alert.LoadID != result.LoadID {
			t.Errorf("alert LoadID = %q, want %q", alert.LoadID, result.LoadID)
		}
	}
}

func TestProcess_MissingBrokerEmailArchivesRejected(t *testing.T) {
	store := newMockStore()
	email := testEmail()
	email.Subject = "VAN needed from Columbus, OH to Dayton, OH" // no broker email

	result, err := newTestProcessor(store, &mockResolver{}, &mockPublisher{}).Process(context.Background(), email)
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if !result.Rejected {
		t.Error("Rejected = false, want true")
	}

	a, ok := store.archived["msg-100"]
	if !ok {
		t.Fatal("rejected email was not archived")
	}
	if a.status != "rejected" || a.reason == "" {
		t.Errorf("archived as %q/%q, want rejected with a reason", a.status, a.reason)
	}
	if len(store.loads) != 0 {
		t.Errorf("rejected email created a load: %v", store.loads)
	}
}

func TestProcess_UnresolvedOriginSkipsMatching(t *testing.T) {
	store := newMockStore()
	store.plans = []models.HuntPlan{daytonPlan("p1")}
	resolver := &mockResolver{coords: nil} // geocoder cannot place the origin
	pub := &mockPublisher{}

	result, err := newTestProcessor(store, resolver, pub).Process(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Unresolved {
		t.Error("Unresolved = false, want true")
	}
	if result.NewMatches != 0 || len(pub.alerts) != 0 {
		t.Errorf("matching ran on unresolved origin: %d matches, %d alerts", result.NewMatches, len(pub.alerts))
	}
	if len(store.coords) != 0 {
		t.Errorf("coordinates stored for unresolved origin: %v", store.coords)
	}
	// The load itself is still persisted for the retry job to pick up.
	if result.LoadID == "" {
		t.Error("unresolved load was not persisted")
	}
}

func TestProcess_ReplayShortCircuits(t *testing.T) {
	store := newMockStore()
	resolver := &mockResolver{coords: &columbusCoords}
	p := newTestProcessor(store, resolver, &mockPublisher{})

	first, err := p.Process(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Process(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !second.Replayed {
		t.Error("Replayed = false on duplicate notification")
	}
	if second.LoadID != first.LoadID {
		t.Errorf("replay returned load %q, first ingest %q", second.LoadID, first.LoadID)
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 — replay must stop before geocoding", resolver.calls)
	}
}

func TestReparse_OverwritesAndFindsNewMatches(t *testing.T) {
	store := newMockStore()
	resolver := &mockResolver{coords: &columbusCoords}
	pub := &mockPublisher{}
	p := newTestProcessor(store, resolver, pub)

	// First ingest: no plans, so no matches.
	first, err := p.Process(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.NewMatches != 0 {
		t.Fatalf("first ingest produced %d matches with no plans", first.NewMatches)
	}

	// A plan appears; reparse re-evaluates.
	store.mu.Lock()
	store.plans = []models.HuntPlan{daytonPlan("p1")}
	store.mu.Unlock()

	result, err := p.Reparse(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Replayed {
		t.Error("Replayed = false, want true on reparse of an archived email")
	}
	if len(store.updated) != 1 || store.updated[0] != first.LoadID {
		t.Errorf("UpdateParsedData calls = %v, want [%s]", store.updated, first.LoadID)
	}
	if result.NewMatches != 1 {
		t.Errorf("NewMatches = %d, want 1", result.NewMatches)
	}

	// A second reparse creates nothing new: the match row already exists.
	again, err := p.Reparse(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.NewMatches != 0 {
		t.Errorf("repeat reparse created %d matches, want 0", again.NewMatches)
	}
	if len(pub.alerts) != 1 {
		t.Errorf("published %d alerts total, want 1 — existing matches are not re-announced", len(pub.alerts))
	}
}

func TestEvaluate_InsertFailureDoesNotPublish(t *testing.T) {
	store := newMockStore()
	store.plans = []models.HuntPlan{daytonPlan("p1")}
	store.insertMatchErr = fmt.Errorf("connection reset")
	pub := &mockPublisher{}
	p := newTestProcessor(store, &mockResolver{coords: &columbusCoords}, pub)

	load := &models.ParsedLoad{LoadID: "LH-260901-001", VehicleType: "VAN"}
	created, err := p.Evaluate(context.Background(), load, columbusCoords)
	if err != nil {
		t.Fatalf("per-match persistence failure must not abort evaluation: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if len(pub.alerts) != 0 {
		t.Errorf("alert published for unpersisted match")
	}
}
