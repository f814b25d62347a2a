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

// Package models defines the data structures shared across the Load Hunter
// ingestion service.
package models

import "time"

// InboundEmail is one broker load-offer email as received from the mail
// provider, before extraction.
type InboundEmail struct {
	EmailID    string `json:"email_id"` // provider message id, opaque
	Mailbox    string `json:"mailbox"`
	Subject    string `json:"subject"`
	BodyHTML   string `json:"body_html,omitempty"`
	BodyText   string `json:"body_text,omitempty"`
	ReceivedAt string `json:"received_at,omitempty"` // RFC 3339
}

// ParsedLoad is the structured result of extracting one Sylectus-format
// load offer. All fields except BrokerEmail are best effort: missing
// optional numerics are nil, missing strings are empty. A load with an
// empty BrokerEmail never exists — extraction rejects the record instead.
type ParsedLoad struct {
	EmailID string `json:"email_id"`
	LoadID  string `json:"load_id"` // LH-YYMMDD-###, assigned at persist time

	// Route
	OriginCity       string   `json:"origin_city"`
	OriginState      string   `json:"origin_state"`
	DestinationCity  string   `json:"destination_city"`
	DestinationState string   `json:"destination_state"`
	LoadedMiles      *float64 `json:"loaded_miles,omitempty"`
	WeightLbs        *float64 `json:"weight_lbs,omitempty"`

	// Vehicle
	VehicleType string `json:"vehicle_type"`

	// Timing. Pickup/delivery values may be real timestamps or free-text
	// instructions such as "ASAP", so they stay strings.
	PickupDate   string     `json:"pickup_date,omitempty"`
	PickupTime   string     `json:"pickup_time,omitempty"`
	DeliveryDate string     `json:"delivery_date,omitempty"`
	DeliveryTime string     `json:"delivery_time,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// Commercial. Rate comes from "Posted Amount:" only.
	Rate         *float64 `json:"rate,omitempty"`
	OrderNumber  string   `json:"order_number,omitempty"`
	CustomerName string   `json:"customer_name,omitempty"`

	// Broker identity. BrokerEmail is mandatory — downstream customer
	// auto-creation keys on it.
	BrokerName    string `json:"broker_name,omitempty"`
	BrokerCompany string `json:"broker_company,omitempty"`
	BrokerPhone   string `json:"broker_phone,omitempty"`
	BrokerEmail   string `json:"broker_email"`

	// Physical attributes
	Pieces           *int   `json:"pieces,omitempty"`
	Dimensions       string `json:"dimensions,omitempty"` // "LxWxH"
	DockLevel        bool   `json:"dock_level"`
	Hazmat           bool   `json:"hazmat"`
	Stackable        bool   `json:"stackable"`
	HasMultipleStops bool   `json:"has_multiple_stops"`
	StopCount        int    `json:"stop_count"`

	Notes string `json:"notes,omitempty"`
}

// Origin returns the load's origin as a "City, ST" string for geocoding.
func (l *ParsedLoad) Origin() string {
	if l.OriginCity == "" {
		return ""
	}
	if l.OriginState == "" {
		return l.OriginCity
	}
	return l.OriginCity + ", " + l.OriginState
}

// HuntPlan is a dispatcher's standing search: match incoming loads whose
// origin falls within PickupRadiusMiles of the plan origin and whose
// vehicle type equals VehicleSize exactly.
type HuntPlan struct {
	ID                string
	VehicleID         string
	OriginLat         float64
	OriginLng         float64
	PickupRadiusMiles float64
	VehicleSize       string
	Enabled           bool
}

// Match is the result of one load satisfying one hunt plan.
type Match struct {
	LoadID        string
	PlanID        string
	DistanceMiles float64
	MatchScore    float64
	IsActive      bool
	MatchedAt     time.Time
}
