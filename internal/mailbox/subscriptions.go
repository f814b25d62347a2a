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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/loadhunter/ingestion/internal/config"
	"github.com/loadhunter/ingestion/internal/store"
)

// maxSubscriptionMinutes is the Graph API ceiling for mail subscription
// lifetime (just under 3 days).
const maxSubscriptionMinutes = 4230

// SubscriptionStore is the persistence the subscriber needs. Implemented
// by *store.Store.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub store.Subscription) error
	ListExpiringSubscriptions(ctx context.Context, buffer time.Duration) ([]store.Subscription, error)
	UpdateSubscriptionExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) error
}

// Subscriber creates and renews inbox change-notification subscriptions
// for the configured dispatch mailboxes.
type Subscriber struct {
	clients      map[string]*http.Client // keyed by account alias
	accounts     []config.AccountConfig
	store        SubscriptionStore
	graphBaseURL string
	webhookURL   string
}

// SubscriberConfig holds dependencies for the subscriber.
type SubscriberConfig struct {
	Clients      map[string]*http.Client
	Accounts     []config.AccountConfig
	Store        SubscriptionStore
	GraphBaseURL string
	WebhookURL   string
}

// NewSubscriber creates a subscription manager for the dispatch mailboxes.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	return &Subscriber{
		clients:      cfg.Clients,
		accounts:     cfg.Accounts,
		store:        cfg.Store,
		graphBaseURL: cfg.GraphBaseURL,
		webhookURL:   cfg.WebhookURL,
	}
}

// EnsureAll creates a subscription for every configured mailbox. Failures
// are logged per account so one bad credential set doesn't block the
// rest; the returned error reports only a total wipeout.
func (s *Subscriber) EnsureAll(ctx context.Context) error {
	var ok int
	for _, account := range s.accounts {
		if err := s.subscribe(ctx, account); err != nil {
			slog.Error("subscription create failed",
				"account", account.Alias,
				"mailbox", account.Mailbox,
				"error", err,
			)
			continue
		}
		ok++
	}
	if ok == 0 && len(s.accounts) > 0 {
		return fmt.Errorf("no mailbox subscriptions could be created")
	}
	return nil
}

// subscribe creates one inbox subscription and persists its state.
func (s *Subscriber) subscribe(ctx context.Context, account config.AccountConfig) error {
	client, ok := s.clients[account.Alias]
	if !ok {
		return fmt.Errorf("no Graph client for account %q", account.Alias)
	}

	clientState := uuid.New().String()
	expiry := time.Now().UTC().Add(maxSubscriptionMinutes * time.Minute)

	payload := map[string]string{
		"changeType":         "created",
		"notificationUrl":    fmt.Sprintf("%s/webhook/%s", s.webhookURL, account.Alias),
		"resource":           fmt.Sprintf("/users/%s/mailFolders('inbox')/messages", url.PathEscape(account.Mailbox)),
		"clientState":        clientState,
		"expirationDateTime": expiry.Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.graphBaseURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("subscription create returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		ID                 string `json:"id"`
		ExpirationDateTime string `json:"expirationDateTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode subscription response: %w", err)
	}

	parsedExpiry, err := time.Parse(time.RFC3339, result.ExpirationDateTime)
	if err != nil {
		parsedExpiry = expiry
	}

	if err := s.store.UpsertSubscription(ctx, store.Subscription{
		SubscriptionID: result.ID,
		AccountAlias:   account.Alias,
		Mailbox:        account.Mailbox,
		ClientState:    clientState,
		ExpiresAt:      parsedExpiry,
	}); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}

	slog.Info("mailbox subscription created",
		"account", account.Alias,
		"mailbox", account.Mailbox,
		"subscription_id", result.ID,
		"expires_at", parsedExpiry,
	)

	return nil
}

// RenewExpiring extends every subscription expiring within buffer. A 404
// means the provider dropped the subscription; it is re-created.
func (s *Subscriber) RenewExpiring(ctx context.Context, buffer time.Duration) {
	subs, err := s.store.ListExpiringSubscriptions(ctx, buffer)
	if err != nil {
		slog.Error("list expiring subscriptions failed", "error", err)
		return
	}

	for _, sub := range subs {
		if err := s.renew(ctx, sub); err != nil {
			slog.Error("subscription renewal failed",
				"subscription_id", sub.SubscriptionID,
				"account", sub.AccountAlias,
				"error", err,
			)
		}
	}
}

func (s *Subscriber) renew(ctx context.Context, sub store.Subscription) error {
	client, ok := s.clients[sub.AccountAlias]
	if !ok {
		return fmt.Errorf("no Graph client for account %q", sub.AccountAlias)
	}

	newExpiry := time.Now().UTC().Add(maxSubscriptionMinutes * time.Minute)
	payload := map[string]string{
		"expirationDateTime": newExpiry.Format(time.RFC3339),
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/subscriptions/%s", s.graphBaseURL, sub.SubscriptionID),
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build renewal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("renew subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("subscription removed by provider, re-creating",
			"subscription_id", sub.SubscriptionID,
			"account", sub.AccountAlias,
		)
		for _, account := range s.accounts {
			if account.Alias == sub.AccountAlias {
				return s.subscribe(ctx, account)
			}
		}
		return fmt.Errorf("account %s not found in config", sub.AccountAlias)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("subscription renew returned HTTP %d: %s", resp.StatusCode, respBody)
	}

	if err := s.store.UpdateSubscriptionExpiry(ctx, sub.SubscriptionID, newExpiry); err != nil {
		return err
	}

	slog.Info("mailbox subscription renewed",
		"subscription_id", sub.SubscriptionID,
		"account", sub.AccountAlias,
		"expires_at", newExpiry,
	)
	return nil
}
