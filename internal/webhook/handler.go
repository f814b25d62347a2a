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

// Package webhook handles incoming Graph API change notifications for
// the dispatch mailboxes. When a broker posts a load offer, the mail
// provider POSTs a notification here; the handler fetches the full email
// and runs it through the ingestion pipeline.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/loadhunter/ingestion/internal/dedup"
	"github.com/loadhunter/ingestion/internal/mailbox"
	"github.com/loadhunter/ingestion/internal/pipeline"
	"github.com/loadhunter/ingestion/internal/store"
)

// ChangeNotification represents a single Graph API change notification.
type ChangeNotification struct {
	SubscriptionID string `json:"subscriptionId"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
	ClientState    string `json:"clientState"`
}

// NotificationPayload is the wrapper Graph sends.
type NotificationPayload struct {
	Value []ChangeNotification `json:"value"`
}

// SubscriptionLookup resolves a notification's subscription id to its
// stored state. Implemented by *store.Store.
type SubscriptionLookup interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*store.Subscription, error)
}

// Handler processes change notifications into ingested loads.
type Handler struct {
	fetcher   *mailbox.Fetcher
	processor *pipeline.Processor
	filter    *dedup.Filter
	subs      SubscriptionLookup
}

// NewHandler creates a change notification handler.
func NewHandler(fetcher *mailbox.Fetcher, processor *pipeline.Processor, filter *dedup.Filter, subs SubscriptionLookup) *Handler {
	return &Handler{
		fetcher:   fetcher,
		processor: processor,
		filter:    filter,
		subs:      subs,
	}
}

// ServeNotification handles change notification webhook requests.
//
// Graph API validation flow:
//   - When creating a subscription, Graph sends a POST with ?validationToken=<token>
//   - We must respond 200 OK with the token in plain text
//
// Normal notification flow:
//   - Graph POSTs a JSON body with an array of ChangeNotification objects
//   - We respond 202 Accepted immediately
//   - Process notifications in the background
func (h *Handler) ServeNotification(w http.ResponseWriter, r *http.Request) {
	// Handle validation probe
	if token := r.URL.Query().Get("validationToken"); token != "" {
		slog.Info("subscription validation probe received")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read notification body", "error", err)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var payload NotificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Info("notification body not valid JSON, treating as probe",
			"body_len", len(body),
		)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Respond immediately — Graph expects a fast response
	w.WriteHeader(http.StatusAccepted)

	// Process in background
	go h.processNotifications(context.Background(), payload.Value)
}

// processNotifications runs each notification through the pipeline. Each
// one is handled in isolation: a bad notification only loses itself.
func (h *Handler) processNotifications(ctx context.Context, notifications []ChangeNotification) {
	for _, n := range notifications {
		// Only new messages matter — a load offer is never edited in place.
		if n.ChangeType != "created" {
			slog.Debug("skipping non-created notification",
				"change_type", n.ChangeType,
				"resource", n.Resource,
			)
			continue
		}

		messageID, err := parseResource(n.Resource)
		if err != nil {
			slog.Warn("failed to parse notification resource",
				"resource", n.Resource,
				"error", err,
			)
			continue
		}

		// Validate clientState against the stored subscription.
		sub, err := h.subs.GetSubscription(ctx, n.SubscriptionID)
		if err != nil {
			slog.Error("subscription lookup failed",
				"subscription_id", n.SubscriptionID,
				"error", err,
			)
			continue
		}
		if sub == nil {
			slog.Warn("notification for unknown subscription, dropping",
				"subscription_id", n.SubscriptionID,
			)
			continue
		}
		if n.ClientState != "" && n.ClientState != sub.ClientState {
			slog.Warn("clientState mismatch — possible spoofed notification",
				"subscription_id", n.SubscriptionID,
			)
			continue
		}

		// Dedup — the catch-up sweep may race us to the same message.
		isNew, err := h.filter.IsNew(ctx, messageID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate message", "message_id", messageID)
			continue
		}

		slog.Info("processing change notification",
			"account", sub.AccountAlias,
			"mailbox", sub.Mailbox,
			"message_id", messageID,
		)

		email, err := h.fetcher.FetchMessage(ctx, sub.AccountAlias, sub.Mailbox, messageID)
		if err != nil {
			slog.Error("fetch message failed",
				"message_id", messageID,
				"error", err,
			)
			continue
		}
		if email == nil {
			continue
		}

		if _, err := h.processor.Process(ctx, *email); err != nil {
			slog.Error("pipeline failed",
				"message_id", messageID,
				"error", err,
			)
		}
	}
}

// parseResource extracts the message ID from a Graph notification
// resource string. Format: "Users/{userId}/Messages/{messageId}",
// with or without a leading slash and in either capitalisation.
func parseResource(resource string) (messageID string, err error) {
	resource = strings.TrimPrefix(resource, "/")

	parts := strings.Split(resource, "/")
	if len(parts) != 4 || !strings.EqualFold(parts[0], "users") || !strings.EqualFold(parts[2], "messages") {
		return "", fmt.Errorf("unexpected resource format: %s", resource)
	}

	return parts[3], nil
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned
// channel before starting to accept connections — Graph validates the
// endpoint synchronously when subscriptions are created.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/", handler.ServeNotification)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
