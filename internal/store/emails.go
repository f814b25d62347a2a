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

// Email statuses in the raw_emails archive.
const (
	EmailStatusParsed   = "parsed"
	EmailStatusRejected = "rejected"
)

// ArchiveEmail stores the raw email with its extraction outcome. Rejected
// emails stay visible so an operator can inspect them and extend the
// parser; rejectReason is empty for parsed ones. Replays upsert in place.
func (s *Store) ArchiveEmail(ctx context.Context, email models.InboundEmail, status, rejectReason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_emails
			(email_id, mailbox, subject, body_html, body_text, received_at, status, reject_reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::timestamptz, $7, $8)
		ON CONFLICT (email_id) DO UPDATE SET
			status        = EXCLUDED.status,
			reject_reason = EXCLUDED.reject_reason,
			updated_at    = NOW()
	`, email.EmailID, email.Mailbox, email.Subject, email.BodyHTML, email.BodyText,
		email.ReceivedAt, status, rejectReason)
	if err != nil {
		return fmt.Errorf("archive email %s: %w", email.EmailID, err)
	}
	return nil
}

// ListArchivedEmails returns archived raw emails for reparsing, newest
// first. statusFilter narrows to one status; empty returns everything.
func (s *Store) ListArchivedEmails(ctx context.Context, statusFilter string, limit int) ([]models.InboundEmail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email_id, mailbox, subject, body_html, body_text,
		       COALESCE(to_char(received_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"'), '')
		FROM raw_emails
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, statusFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived emails: %w", err)
	}
	defer rows.Close()

	var emails []models.InboundEmail
	for rows.Next() {
		var e models.InboundEmail
		if err := rows.Scan(&e.EmailID, &e.Mailbox, &e.Subject, &e.BodyHTML, &e.BodyText, &e.ReceivedAt); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
