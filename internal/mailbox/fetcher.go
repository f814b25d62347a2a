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

// Package mailbox provides Microsoft Graph access to the dispatch
// mailboxes that receive Sylectus load offers: full-message retrieval,
// recent-message listing for the catch-up sweep, and change-notification
// subscription management.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/loadhunter/ingestion/internal/models"
)

// Fetcher retrieves full email messages from the Graph API using
// per-account OAuth clients.
type Fetcher struct {
	clients      map[string]*http.Client // keyed by account alias
	graphBaseURL string
}

// NewFetcher creates a Graph API message fetcher.
func NewFetcher(clients map[string]*http.Client, graphBaseURL string) *Fetcher {
	return &Fetcher{
		clients:      clients,
		graphBaseURL: graphBaseURL,
	}
}

// graphMessage holds the fields we select from a Graph message response.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

// FetchMessage retrieves the full content of one message. The Sylectus
// layout lives in the HTML body, so no content-type preference header is
// sent — we want the body exactly as posted; bodyPreview supplies the
// text fallback. Returns nil for messages deleted before we got to them.
func (f *Fetcher) FetchMessage(ctx context.Context, accountAlias, mailbox, messageID string) (*models.InboundEmail, error) {
	client, ok := f.clients[accountAlias]
	if !ok {
		return nil, fmt.Errorf("no Graph client for account %q", accountAlias)
	}

	u := fmt.Sprintf("%s/users/%s/messages/%s?$select=id,subject,body,bodyPreview,receivedDateTime",
		f.graphBaseURL, url.PathEscape(mailbox), url.PathEscape(messageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)",
			"mailbox", mailbox,
			"message_id", messageID,
		)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph API returned HTTP %d for message %s", resp.StatusCode, messageID)
	}

	var msg graphMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode graph message: %w", err)
	}

	return toInboundEmail(msg, mailbox), nil
}

// messagesPage is one page of a /messages list response.
type messagesPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// ListRecentMessages returns every message received in the mailbox since
// the given time, paging through the list endpoint.
func (f *Fetcher) ListRecentMessages(ctx context.Context, accountAlias, mailbox string, since time.Time) ([]models.InboundEmail, error) {
	client, ok := f.clients[accountAlias]
	if !ok {
		return nil, fmt.Errorf("no Graph client for account %q", accountAlias)
	}

	params := url.Values{}
	params.Set("$select", "id,subject,body,bodyPreview,receivedDateTime")
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$orderby", "receivedDateTime asc")
	params.Set("$top", "50")

	nextURL := fmt.Sprintf("%s/users/%s/messages?%s", f.graphBaseURL, url.PathEscape(mailbox), params.Encode())

	var emails []models.InboundEmail
	for nextURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, nextURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build list request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			slog.Error("message list error", "status", resp.StatusCode, "body", string(body))
			return nil, fmt.Errorf("message list returned HTTP %d", resp.StatusCode)
		}

		var page messagesPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode message list: %w", err)
		}

		for _, msg := range page.Value {
			emails = append(emails, *toInboundEmail(msg, mailbox))
		}
		nextURL = page.NextLink
	}

	return emails, nil
}

// toInboundEmail converts a Graph message into the canonical shape the
// extractor consumes.
func toInboundEmail(msg graphMessage, mailbox string) *models.InboundEmail {
	email := &models.InboundEmail{
		EmailID:    msg.ID,
		Mailbox:    mailbox,
		Subject:    msg.Subject,
		BodyText:   msg.BodyPreview,
		ReceivedAt: msg.ReceivedDateTime,
	}
	if msg.Body.ContentType == "html" {
		email.BodyHTML = msg.Body.Content
	} else if msg.Body.Content != "" {
		email.BodyText = msg.Body.Content
	}
	return email
}
