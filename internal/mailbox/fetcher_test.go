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
	"testing"
	"time"
)

func testFetcher(serverURL string) *Fetcher {
	return NewFetcher(map[string]*http.Client{"main": http.DefaultClient}, serverURL)
}

func TestFetchMessage_HTMLBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/dispatch@example.com/messages/m1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"id": "m1",
			"subject": "VAN needed from Columbus, OH to Dayton, OH (b@a.com)",
			"body": {"contentType": "html", "content": "<html>offer</html>"},
			"bodyPreview": "offer",
			"receivedDateTime": "2026-09-01T12:00:00Z"
		}`)
	}))
	defer server.Close()

	email, err := testFetcher(server.URL).FetchMessage(context.Background(), "main", "dispatch@example.com", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email == nil {
		t.Fatal("email = nil")
	}
	if email.EmailID != "m1" || email.Mailbox != "dispatch@example.com" {
		t.Errorf("identity = %q/%q", email.EmailID, email.Mailbox)
	}
	if email.BodyHTML != "<html>offer</html>" {
		t.Errorf("BodyHTML = %q", email.BodyHTML)
	}
	if email.BodyText != "offer" {
		t.Errorf("BodyText = %q, want the preview as fallback", email.BodyText)
	}
	if email.ReceivedAt != "2026-09-01T12:00:00Z" {
		t.Errorf("ReceivedAt = %q", email.ReceivedAt)
	}
}

func TestFetchMessage_DeletedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	email, err := testFetcher(server.URL).FetchMessage(context.Background(), "main", "dispatch@example.com", "gone")
	if err != nil {
		t.Fatalf("deleted message should not be an error: %v", err)
	}
	if email != nil {
		t.Errorf("email = %+v, want nil", email)
	}
}

func TestFetchMessage_UnknownAccount(t *testing.T) {
	f := NewFetcher(map[string]*http.Client{}, "http://unused")
	if _, err := f.FetchMessage(context.Background(), "nope", "m", "id"); err == nil {
		t.Error("expected error for unconfigured account")
	}
}

func TestListRecentMessages_Paging(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value": [{"id": "m2", "subject": "s2", "bodyPreview": "b2"}]}`)
			return
		}
		if filter := r.URL.Query().Get("$filter"); filter == "" {
			t.Error("first page request missing $filter")
		}
		fmt.Fprintf(w, `{
			"value": [{"id": "m1", "subject": "s1", "bodyPreview": "b1"}],
			"@odata.nextLink": %q
		}`, server.URL+"/users/dispatch@example.com/messages?page=2")
	}))
	defer server.Close()

	since := time.Now().Add(-30 * time.Minute)
	emails, err := testFetcher(server.URL).ListRecentMessages(context.Background(), "main", "dispatch@example.com", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("got %d emails, want 2 across pages", len(emails))
	}
	if emails[0].EmailID != "m1" || emails[1].EmailID != "m2" {
		t.Errorf("ids = %q, %q", emails[0].EmailID, emails[1].EmailID)
	}
}

func TestListRecentMessages_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	if _, err := testFetcher(server.URL).ListRecentMessages(context.Background(), "main", "dispatch@example.com", time.Now()); err == nil {
		t.Error("expected error for HTTP 429")
	}
}

func TestToInboundEmail_TextBody(t *testing.T) {
	msg := graphMessage{ID: "m1", Subject: "s", BodyPreview: "preview"}
	msg.Body.ContentType = "text"
	msg.Body.Content = "full text body"

	email := toInboundEmail(msg, "dispatch@example.com")
	if email.BodyHTML != "" {
		t.Errorf("BodyHTML = %q, want empty for text content", email.BodyHTML)
	}
	if email.BodyText != "full text body" {
		t.Errorf("BodyText = %q, want full content over preview", email.BodyText)
	}
}
