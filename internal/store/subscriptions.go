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
	"time"

	"github.com/jackc/pgx/v5"
)

// Subscription is the persisted state of one mailbox change-notification
// subscription with the mail provider.
type Subscription struct {
	SubscriptionID string
	AccountAlias   string
	Mailbox        string
	ClientState    string
	ExpiresAt      time.Time
}

// UpsertSubscription writes subscription state keyed on (account, mailbox).
func (s *Store) UpsertSubscription(ctx context.Context, sub Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mailbox_subscriptions
			(subscription_id, account_alias, mailbox, client_state, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_alias, mailbox) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			client_state    = EXCLUDED.client_state,
			expires_at      = EXCLUDED.expires_at,
			updated_at      = NOW()
	`, sub.SubscriptionID, sub.AccountAlias, sub.Mailbox, sub.ClientState, sub.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert subscription for %s/%s: %w", sub.AccountAlias, sub.Mailbox, err)
	}
	return nil
}

// GetSubscription looks up subscription state by its provider id. Returns
// nil when unknown.
func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT subscription_id, account_alias, mailbox, client_state, expires_at
		FROM mailbox_subscriptions
		WHERE subscription_id = $1
	`, subscriptionID).Scan(&sub.SubscriptionID, &sub.AccountAlias, &sub.Mailbox,
		&sub.ClientState, &sub.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}
	return &sub, nil
}

// ListExpiringSubscriptions returns subscriptions expiring within buffer.
func (s *Store) ListExpiringSubscriptions(ctx context.Context, buffer time.Duration) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscription_id, account_alias, mailbox, client_state, expires_at
		FROM mailbox_subscriptions
		WHERE expires_at < NOW() + $1::interval
		ORDER BY expires_at
	`, fmt.Sprintf("%d seconds", int(buffer.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.SubscriptionID, &sub.AccountAlias, &sub.Mailbox,
			&sub.ClientState, &sub.ExpiresAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubscriptionExpiry records a renewal.
func (s *Store) UpdateSubscriptionExpiry(ctx context.Context, subscriptionID string, newExpiry time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE mailbox_subscriptions
		SET expires_at = $1, updated_at = NOW()
		WHERE subscription_id = $2
	`, newExpiry, subscriptionID)
	if err != nil {
		return fmt.Errorf("update subscription expiry %s: %w", subscriptionID, err)
	}
	return nil
}
