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

// Package sylectus extracts structured load records from Sylectus-format
// load-offer emails. Extraction is a set of independent per-field rules
// over the subject line and the flattened body: one rule missing its
// pattern leaves only its own field absent and never disturbs the rest.
//
// The single mandatory field is the broker email in the subject line —
// downstream customer auto-creation keys on it, so a record without one
// is rejected rather than stored half-formed.
package sylectus

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/loadhunter/ingestion/internal/models"
)

// ErrMissingBrokerEmail is returned when the subject line carries no
// parenthesized broker email. The caller archives the raw email with the
// rejection reason for operator inspection.
var ErrMissingBrokerEmail = errors.New("missing mandatory broker email in subject")

// Extract parses one Sylectus load-offer email into a ParsedLoad. It is a
// pure function of its input: the reparse tool relies on re-running it
// over archived emails producing identical output.
func Extract(email models.InboundEmail) (*models.ParsedLoad, error) {
	subject := email.Subject
	body := flattenBody(email)

	brokerEmail, ok := extractBrokerEmail(subject)
	if !ok {
		return nil, ErrMissingBrokerEmail
	}

	load := &models.ParsedLoad{
		EmailID:     email.EmailID,
		BrokerEmail: brokerEmail,
		StopCount:   1,
	}

	// Subject line fields
	load.VehicleType = extractVehicleType(subject, body)
	if city, state, destCity, destState, ok := extractRoute(subject); ok {
		load.OriginCity = city
		load.OriginState = state
		load.DestinationCity = destCity
		load.DestinationState = destState
	}
	load.LoadedMiles = extractNumberBefore(subject, "miles")
	load.WeightLbs = extractNumberBefore(subject, "lbs")
	load.OrderNumber = extractOrderNumber(subject)
	load.CustomerName = extractCustomerName(subject)

	// Body fields
	load.BrokerName = labelValue(body, "Broker Name")
	load.BrokerCompany = labelValue(body, "Broker Company")
	load.BrokerPhone = labelValue(body, "Broker Phone")
	// Pricing comes from "Posted Amount" only. The format also carries a
	// field literally labeled "Rate", which is NOT the load price and
	// must never be read here.
	load.Rate = extractMoney(labelValue(body, "Posted Amount"))
	load.PickupDate, load.PickupTime = extractLegInfo(body, pickupLabels)
	load.DeliveryDate, load.DeliveryTime = extractLegInfo(body, deliveryLabels)
	load.ExpiresAt = extractExpires(labelValue(body, "Expires"))
	load.Pieces = extractInt(labelValue(body, "Pieces"))
	load.Dimensions = extractDimensions(body)
	load.DockLevel = extractBool(labelValue(body, "Dock Level"))
	load.Hazmat = extractBool(labelValue(body, "Hazmat"))
	load.Stackable = extractBool(labelValue(body, "Stackable"))
	load.Notes = extractNotes(body)

	// The format only ever emits a literal "2 stops" marker; anything
	// beyond two stops has no representation in the source layout.
	if multiStopRe.MatchString(subject) || multiStopRe.MatchString(body) {
		load.HasMultipleStops = true
		load.StopCount = 2
	}

	return load, nil
}

var (
	brokerEmailRe = regexp.MustCompile(`\(([^\s()]+@[^\s()]+\.[^\s()]+)\)`)
	routeRe       = regexp.MustCompile(`(?i)\bfrom\s+([^,]+?),\s*([A-Za-z]{2})\s+to\s+([^,]+?),\s*([A-Za-z]{2})\b`)
	vehicleRe     = regexp.MustCompile(`(?i)^\s*([A-Za-z][A-Za-z /-]*?)\s*(?:needed|wanted|available)?\s+from\s`)
	orderRe       = regexp.MustCompile(`(?i)\bBid on Order\s*#\s*([A-Za-z0-9-]+)`)
	customerRe    = regexp.MustCompile(`(?i)\bPosted by\s+(.+?)\s*\(`)
	multiStopRe   = regexp.MustCompile(`(?i)\b2\s+stops\b`)
)

// extractBrokerEmail pulls the mandatory parenthesized email address from
// the subject line.
func extractBrokerEmail(subject string) (string, bool) {
	m := brokerEmailRe.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// extractVehicleType takes the vehicle token that opens the subject line,
// falling back to the body's "Load Type" label. Values are uppercased so
// hunt-plan comparison stays a plain string equality.
func extractVehicleType(subject, body string) string {
	if m := vehicleRe.FindStringSubmatch(subject); m != nil {
		return canonicalToken(m[1])
	}
	if v := labelValue(body, "Load Type"); v != "" {
		return canonicalToken(v)
	}
	return ""
}

// extractRoute parses "from <city>, <ST> to <city>, <ST>".
func extractRoute(subject string) (originCity, originState, destCity, destState string, ok bool) {
	m := routeRe.FindStringSubmatch(subject)
	if m == nil {
		return "", "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.ToUpper(m[2]),
		strings.TrimSpace(m[3]), strings.ToUpper(m[4]), true
}

// extractNumberBefore finds the number immediately preceding a unit word,
// e.g. "75 miles" or "1,200 lbs".
func extractNumberBefore(s, unit string) *float64 {
	re := regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*` + regexp.QuoteMeta(unit) + `\b`)
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return parseFloat(m[1])
}

func extractOrderNumber(subject string) string {
	if m := orderRe.FindStringSubmatch(subject); m != nil {
		return m[1]
	}
	return ""
}

func extractCustomerName(subject string) string {
	if m := customerRe.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// zoneOffsets maps the US timezone abbreviations the board emits to
// their fixed UTC offsets. time.Parse attaches a zero offset to an
// abbreviation it cannot resolve, which would shift the expiry by the
// full zone offset and expire loads hours early.
var zoneOffsets = map[string]int{
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// extractExpires parses the raw "Expires:" value, a local timestamp with
// a trailing timezone abbreviation resolved to its fixed offset. A value
// with an unknown zone or layout is absent, not zero: the pipeline
// substitutes the default load lifetime instead.
func extractExpires(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	loc := time.UTC
	if i := strings.LastIndex(raw, " "); i > 0 {
		abbrev := strings.ToUpper(strings.TrimSpace(raw[i+1:]))
		if off, ok := zoneOffsets[abbrev]; ok {
			loc = time.FixedZone(abbrev, off)
			raw = strings.TrimSpace(raw[:i])
		}
	}

	layouts := []string{
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
		"1/2/2006 15:04:05",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t
		}
	}
	return nil
}

// canonicalToken uppercases and collapses internal whitespace so the
// extractor emits the same canonical string for "cargo  van" and
// "CARGO VAN".
func canonicalToken(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func parseFloat(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func extractInt(s string) *int {
	m := regexp.MustCompile(`\d+`).FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// extractBool interprets yes/no style label values.
func extractBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

func extractMoney(s string) *float64 {
	m := regexp.MustCompile(`[\d,]+(?:\.\d{1,2})?`).FindString(s)
	if m == "" {
		return nil
	}
	return parseFloat(m)
}
