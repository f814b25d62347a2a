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

package geo

import (
	"math"
	"testing"
)

var (
	columbus = Coordinates{Lat: 39.9612, Lng: -82.9988}
	dayton   = Coordinates{Lat: 39.7589, Lng: -84.1916}
	chicago  = Coordinates{Lat: 41.8781, Lng: -87.6298}
)

func TestDistanceMiles_KnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Coordinates
		wantMi   float64
		tolerate float64
	}{
		{"columbus to dayton", columbus, dayton, 64.5, 2},
		{"columbus to chicago", columbus, chicago, 276, 5},
		{"same point", columbus, columbus, 0, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMiles(tt.a.Lat, tt.a.Lng, tt.b.Lat, tt.b.Lng)
			if math.Abs(got-tt.wantMi) > tt.tolerate {
				t.Errorf("DistanceMiles = %.2f, want %.1f ±%.1f", got, tt.wantMi, tt.tolerate)
			}
		})
	}
}

func TestDistanceMiles_Symmetric(t *testing.T) {
	ab := DistanceMiles(columbus.Lat, columbus.Lng, chicago.Lat, chicago.Lng)
	ba := DistanceMiles(chicago.Lat, chicago.Lng, columbus.Lat, columbus.Lng)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %.12f vs %.12f", ab, ba)
	}
}

func TestWithinRadius_InclusiveBoundary(t *testing.T) {
	d := DistanceMiles(columbus.Lat, columbus.Lng, dayton.Lat, dayton.Lng)

	// Radius exactly equal to the distance is a match.
	if _, ok := WithinRadius(columbus, dayton, d); !ok {
		t.Error("distance == radius should match")
	}
	if _, ok := WithinRadius(columbus, dayton, d-0.01); ok {
		t.Error("distance just over radius should not match")
	}
	if got, ok := WithinRadius(columbus, dayton, d+10); !ok || math.Abs(got-d) > 1e-9 {
		t.Errorf("WithinRadius = %.4f, %v; want %.4f, true", got, ok, d)
	}
}

func TestWithinRadius_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name          string
		origin, point Coordinates
	}{
		{"NaN latitude", Coordinates{Lat: math.NaN(), Lng: -82.9}, dayton},
		{"Inf longitude", columbus, Coordinates{Lat: 39.7, Lng: math.Inf(1)}},
		{"latitude out of range", Coordinates{Lat: 91, Lng: 0}, dayton},
		{"longitude out of range", columbus, Coordinates{Lat: 0, Lng: -181}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := WithinRadius(tt.origin, tt.point, 1e9)
			if ok || d != 0 {
				t.Errorf("WithinRadius = %.2f, %v; want 0, false", d, ok)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid(Coordinates{Lat: -90, Lng: 180}) {
		t.Error("range endpoints should be valid")
	}
	if Valid(Coordinates{Lat: 0, Lng: math.NaN()}) {
		t.Error("NaN longitude should be invalid")
	}
}
