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

// Package geocode resolves free-text load origins ("Columbus, OH") to
// coordinates via the Google Maps Geocoding API, behind a Redis
// read-through cache so repeated origins never hit the API twice.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/loadhunter/ingestion/internal/geo"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client wraps the Google Maps Geocoding API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a geocoding client. An empty key yields a client whose
// lookups always miss, so the service degrades to "origin unresolved"
// instead of refusing to start.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Lookup resolves a free-text location to coordinates. A location the API
// cannot resolve returns (nil, nil) — not found is a data outcome, not an
// error; errors mean the API itself misbehaved.
func (c *Client) Lookup(ctx context.Context, location string) (*geo.Coordinates, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s?address=%s&key=%s", c.baseURL, url.QueryEscape(location), c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding API returned HTTP %d", resp.StatusCode)
	}

	var gr geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	switch gr.Status {
	case "OK":
		// fall through
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocoding failed: status=%s", gr.Status)
	}

	if len(gr.Results) == 0 {
		return nil, nil
	}

	loc := gr.Results[0].Geometry.Location
	coords := geo.Coordinates{Lat: loc.Lat, Lng: loc.Lng}
	if !geo.Valid(coords) {
		return nil, fmt.Errorf("geocoding returned out-of-range coordinates (%f, %f)", loc.Lat, loc.Lng)
	}

	return &coords, nil
}
