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

package sylectus

import (
	"html"
	"regexp"
	"strings"

	"github.com/loadhunter/ingestion/internal/models"
)

var (
	pickupLabels   = []string{"Pick-Up", "Pickup", "Pick Up"}
	deliveryLabels = []string{"Delivery", "Deliver To", "Drop-Off"}
)

var (
	blockTagRe  = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/p|/div|/tr|/li|/h[1-6]|/table)\s*>`)
	cellTagRe   = regexp.MustCompile(`(?i)<\s*/t[dh]\s*>`)
	anyTagRe    = regexp.MustCompile(`<[^>]*>`)
	scriptRe    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</\s*(script|style)\s*>`)
	dateTokenRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4})\s*(.*)$`)
	dimsLineRe  = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*[xX×]\s*(\d+(?:\.\d+)?)\s*[xX×]\s*(\d+(?:\.\d+)?)\b`)
)

// flattenBody produces the plain text the label extractors scan. The HTML
// variant wins when both are present — it is the authoritative Sylectus
// layout; the text part is a lossy preview.
func flattenBody(email models.InboundEmail) string {
	if email.BodyHTML != "" {
		return flattenHTML(email.BodyHTML)
	}
	return email.BodyText
}

// flattenHTML reduces Sylectus HTML to label-scannable text: block-level
// closers become newlines, table cells become separators, remaining tags
// are stripped, and entities are decoded.
func flattenHTML(raw string) string {
	s := scriptRe.ReplaceAllString(raw, "")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = cellTagRe.ReplaceAllString(s, " ")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// labelValue returns the text following "<label>:" on its line, or the
// whole next line when the label sits alone (the two-line layout some
// Sylectus tables render).
func labelValue(body, label string) string {
	lines := strings.Split(body, "\n")
	prefix := strings.ToLower(label)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := strings.TrimSpace(trimmed[len(label):])
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSpace(rest)
		if rest != "" {
			return rest
		}
		// Label alone on its line — value is the next non-empty line.
		for j := i + 1; j < len(lines); j++ {
			if next := strings.TrimSpace(lines[j]); next != "" {
				return next
			}
		}
		return ""
	}
	return ""
}

// extractLegInfo parses a pickup or delivery block: a label line followed
// by a line holding the date/time, which may be a real timestamp or a
// free-text instruction such as "ASAP".
func extractLegInfo(body string, labels []string) (date, timeOfDay string) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		matched := false
		for _, label := range labels {
			if strings.HasPrefix(lower, strings.ToLower(label)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" {
				continue
			}
			if m := dateTokenRe.FindStringSubmatch(next); m != nil {
				return m[1], strings.TrimSpace(m[2])
			}
			// Free-text instruction — keep it as the date field so the
			// dashboard shows it where a date would appear.
			return next, ""
		}
		return "", ""
	}
	return "", ""
}

// extractDimensions normalizes the separate length/width/height labels
// into one "LxWxH" string, accepting an already-joined "L x W x H" line
// as a fallback.
func extractDimensions(body string) string {
	l := firstNumber(labelValue(body, "Length"))
	w := firstNumber(labelValue(body, "Width"))
	h := firstNumber(labelValue(body, "Height"))
	if l != "" && w != "" && h != "" {
		return l + "x" + w + "x" + h
	}
	if m := dimsLineRe.FindStringSubmatch(labelValue(body, "Dimensions")); m != nil {
		return m[1] + "x" + m[2] + "x" + m[3]
	}
	return ""
}

// extractNotes concatenates every note fragment in source order.
func extractNotes(body string) string {
	var fragments []string
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "notes") && !strings.HasPrefix(lower, "note:") {
			continue
		}
		rest := strings.TrimSpace(trimmed[strings.Index(trimmed, ":")+1:])
		if !strings.Contains(trimmed, ":") {
			rest = ""
		}
		if rest != "" {
			fragments = append(fragments, rest)
			continue
		}
		if i+1 < len(lines) {
			if next := strings.TrimSpace(lines[i+1]); next != "" && !looksLikeLabel(next) {
				fragments = append(fragments, next)
			}
		}
	}
	return strings.Join(fragments, " ")
}

// looksLikeLabel reports whether a line is a "Something:" field label
// rather than note prose.
func looksLikeLabel(line string) bool {
	idx := strings.Index(line, ":")
	return idx > 0 && idx <= 24 && len(strings.Fields(line[:idx])) <= 3
}

func firstNumber(s string) string {
	return regexp.MustCompile(`\d+(?:\.\d+)?`).FindString(s)
}
