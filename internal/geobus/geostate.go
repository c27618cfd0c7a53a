// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState tracks the last known geolocation coordinates and accuracy values.
// It provides functionality to detect changes in geolocation data.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether the given coordinate differs significantly from the last stored
// one. An empty state always reports a change.
func (s *GeolocationState) HasChanged(c Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return c.PosHasSignificantChange(s.last)
}

// Update stores the given coordinate as the last known position.
func (s *GeolocationState) Update(c Coordinate) {
	s.last = c
	s.haveLast = true
}
