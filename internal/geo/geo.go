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

// Package geo computes great-circle distances between coordinates and
// decides whether a load origin falls inside a hunt plan's pickup radius.
package geo

import "math"

// earthRadiusMiles is the mean Earth radius. Distances throughout the
// system are in statute miles, matching the radius unit on hunt plans.
const earthRadiusMiles = 3958.8

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether c is a usable coordinate pair: finite values
// within [-90,90] latitude and [-180,180] longitude.
func Valid(c Coordinates) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DistanceMiles returns the Haversine great-circle distance between two
// points on a spherical Earth.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

// WithinRadius reports whether point lies within radiusMiles of origin,
// returning the distance for display and ranking. The boundary is
// inclusive: a distance exactly equal to the radius is a match. Invalid
// coordinates on either side degrade to no-match — bad geocoder output
// must exclude a load, never crash or falsely include it.
func WithinRadius(origin, point Coordinates, radiusMiles float64) (float64, bool) {
	if !Valid(origin) || !Valid(point) {
		return 0, false
	}
	d := DistanceMiles(origin.Lat, origin.Lng, point.Lat, point.Lng)
	return d, d <= radiusMiles
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
