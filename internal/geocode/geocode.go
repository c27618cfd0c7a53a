// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/wneessen/place/internal/geobus"
)

var (
	// ErrNoResult is returned when the geocoder has no result for the query.
	ErrNoResult = errors.New("no geocoding result found")

	// ErrRejected is returned when the geocoding API refused the request, e.g. due to an
	// invalid API key or exceeded quota.
	ErrRejected = errors.New("geocoding request rejected by API")
)

// Address is the result of a reverse lookup. Empty strings mark fields the geocoder did not
// provide. Region holds the ISO 3166-2 subdivision code, e.g. "DE-BE".
type Address struct {
	AddressFound bool    `json:"found"`
	CacheHit     bool    `json:"-"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	Altitude     float64 `json:"alt,omitempty"`

	Name           string `json:"name,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	ISOCountryCode string `json:"country_code,omitempty"`
	Country        string `json:"country,omitempty"`
	State          string `json:"state,omitempty"`
	Region         string `json:"region,omitempty"`
	County         string `json:"county,omitempty"`
	Municipality   string `json:"municipality,omitempty"`
	CityDistrict   string `json:"city_district,omitempty"`
	Postcode       string `json:"postcode,omitempty"`
	City           string `json:"city,omitempty"`
	Suburb         string `json:"suburb,omitempty"`
	Street         string `json:"street,omitempty"`
	HouseNumber    string `json:"house_number,omitempty"`
	InlandWater    string `json:"inland_water,omitempty"`
	Ocean          string `json:"ocean,omitempty"`

	AreasOfInterest []string `json:"areas_of_interest,omitempty"`
}

// Clone returns a deep copy of the Address.
func (a Address) Clone() Address {
	a.AreasOfInterest = slices.Clone(a.AreasOfInterest)
	return a
}

// Geocoder translates between coordinates and addresses.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error)
	Search(ctx context.Context, address string) (geobus.Coordinate, error)
}

// ClassifyWater sorts the name of a body of water into inland water or ocean.
func ClassifyWater(name string) (inland, ocean string) {
	if name == "" {
		return "", ""
	}
	lower := strings.ToLower(name)
	for _, marker := range []string{"ocean", "sea", "gulf", "bay", "strait", "channel"} {
		if strings.Contains(lower, marker) {
			return "", name
		}
	}
	return name, ""
}

// RegionCode builds an ISO 3166-2 code from a country code and a subdivision code. Codes that
// already carry a country prefix are returned unchanged.
func RegionCode(country, subdivision string) string {
	if subdivision == "" {
		return ""
	}
	subdivision = strings.ToUpper(subdivision)
	if strings.Contains(subdivision, "-") || country == "" {
		return subdivision
	}
	return strings.ToUpper(country) + "-" + subdivision
}

// AppendUnique appends the non-empty values that are not yet part of list.
func AppendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}
