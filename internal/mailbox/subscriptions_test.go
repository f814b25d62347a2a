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

package mailbox

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/store"
)

type mockSubStore struct {
	mu       sync.Mutex
	upserted []store.Subscription
	expiring []store.Subscription
	renewed  map[string]time.Time
}

func newMockSubStore() *mockSubStore {
	return &mockSubStore{renewed: map[string]time.Time{}}
}

func (m *mockSubStore) UpsertSubscription(_ context.Context, sub store.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, sub)
	return nil
}

func (m *mockSubStore) ListExpiringSubscriptions(context.Context, time.Duration) ([]store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiring, nil
}

func (m *mockSubStore) UpdateSubscriptionExpiry(_ context.Context, id string, newExpiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renewed[id] = newExpiry
	return nil
}

func testAccount(alias string) config.AccountConfig {
	return config.AccountConfig{
		Alias:    alias,
		Provider: "m365",
		Mailbox:  alias + "@example.com",
	}
}

func testSubscriber(serverURL string, st SubscriptionStore, accounts ...config.AccountConfig) *Subscriber {
	clients := make(map[string]*http.Client, len(accounts))
	for _, a := range accounts {
		clients[a.Alias] = http.DefaultClient
	}
	return NewSubscriber(SubscriberConfig{
		Clients:      clients,
		Accounts:     accounts,
		Store:        st,
		GraphBaseURL: serverURL,
		WebhookURL:   "https://hooks.example.com",
	})
}

func TestEnsureAll_CreatesAndPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/subscriptions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": "sub-new", "expirationDateTime": %q}`,
			time.Now().Add(70*time.Hour).UTC().Format(time.RFC3339))
	}))
	defer server.Close()

	st := newMockSubStore()
	sub := testSubscriber(server.URL, st, testAccount("main"))

	if err := sub.EnsureAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.upserted) != 1 {
		t.Fatalf("persisted %d subscriptions, want 1", len(st.upserted))
	}
	got := st.upserted[0]
	if got.SubscriptionID != "sub-new" {
		t.Errorf("SubscriptionID = %q", got.SubscriptionID)
	}
	if got.AccountAlias != "main" || got.Mailbox != "main@example.com" {
		t.Errorf("account = %q/%q", got.AccountAlias, got.Mailbox)
	}
	if got.ClientState == "" {
		t.Error("ClientState empty — spoof detection needs a per-subscription secret")
	}
}

func TestEnsureAll_OneBadAccountDoesNotBlockOthers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "sub-ok", "expirationDateTime": "2026-09-04T12:00:00Z"}`)
	}))
	defer server.Close()

	st := newMockSubStore()
	// "broken" has no Graph client, so its subscribe call fails.
	sub := testSubscriber(server.URL, st, testAccount("main"))
	sub.accounts = append(sub.accounts, testAccount("broken"))

	if err := sub.EnsureAll(context.Background()); err != nil {
		t.Fatalf("partial failure should not surface: %v", err)
	}
	if len(st.upserted) != 1 {
		t.Errorf("persisted %d subscriptions, want 1", len(st.upserted))
	}
}

func TestEnsureAll_TotalFailure(t *testing.T) {
	st := newMockSubStore()
	sub := NewSubscriber(SubscriberConfig{
		Clients:  map[string]*http.Client{},
		Accounts: []config.AccountConfig{testAccount("main")},
		Store:    st,
	})
	if err := sub.EnsureAll(context.Background()); err == nil {
		t.Error("expected error when no subscription could be created")
	}
}

func TestRenewExpiring_Renews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/subscriptions/sub-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	st := newMockSubStore()
	st.expiring = []store.Subscription{{
		SubscriptionID: "sub-1",
		AccountAlias:   "main",
		Mailbox:        "main@example.com",
		ExpiresAt:      time.Now().Add(time.Hour),
	}}
	sub := testSubscriber(server.URL, st, testAccount("main"))

	sub.RenewExpiring(context.Background(), 6*time.Hour)

	if _, ok := st.renewed["sub-1"]; !ok {
		t.Error("expiry was not updated after renewal")
	}
}

func TestRenewExpiring_404Recreates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "sub-replacement", "expirationDateTime": "2026-09-04T12:00:00Z"}`)
	}))
	defer server.Close()

	st := newMockSubStore()
	st.expiring = []store.Subscription{{
		SubscriptionID: "sub-dropped",
		AccountAlias:   "main",
		Mailbox:        "main@example.com",
	}}
	sub := testSubscriber(server.URL, st, testAccount("main"))

	sub.RenewExpiring(context.Background(), 6*time.Hour)

	if len(st.upserted) != 1 || st.upserted[0].SubscriptionID != "sub-replacement" {
		t.Errorf("upserted = %+v, want one replacement subscription", st.upserted)
	}
	if len(st.renewed) != 0 {
		t.Errorf("renewed = %v, want none — the dropped id must not be extended", st.renewed)
	}
}

func TestMaxSubscriptionMinutes(t *testing.T) {
	// Graph caps mail subscriptions just under three days.
	if maxSubscriptionMinutes != 4230 {
		t.Errorf("maxSubscriptionMinutes = %d, want 4230", maxSubscriptionMinutes)
	}
}
