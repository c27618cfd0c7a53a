// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"slices"

	"github.com/wneessen/place/internal/geocode"
)

// Placemark describes the place at a location. Empty fields are unknown.
type Placemark struct {
	Name                  string   `json:"name,omitempty"`
	ISOCountryCode        string   `json:"iso_country_code,omitempty"`
	Country               string   `json:"country,omitempty"`
	PostalCode            string   `json:"postal_code,omitempty"`
	AdministrativeArea    string   `json:"administrative_area,omitempty"`
	SubAdministrativeArea string   `json:"subadministrative_area,omitempty"`
	Locality              string   `json:"locality,omitempty"`
	SubLocality           string   `json:"sublocality,omitempty"`
	Thoroughfare          string   `json:"thoroughfare,omitempty"`
	SubThoroughfare       string   `json:"subthoroughfare,omitempty"`
	Region                string   `json:"region,omitempty"`
	InlandWater           string   `json:"inland_water,omitempty"`
	Ocean                 string   `json:"ocean,omitempty"`
	AreasOfInterest       []string `json:"areas_of_interest,omitempty"`
}

// NewPlacemark converts a geocoded address. The result shares no memory with addr.
func NewPlacemark(addr geocode.Address) *Placemark {
	return &Placemark{
		Name:                  firstOf(addr.Name, addr.DisplayName),
		ISOCountryCode:        addr.ISOCountryCode,
		Country:               addr.Country,
		PostalCode:            addr.Postcode,
		AdministrativeArea:    addr.State,
		SubAdministrativeArea: firstOf(addr.County, addr.Municipality),
		Locality:              addr.City,
		SubLocality:           firstOf(addr.Suburb, addr.CityDistrict),
		Thoroughfare:          addr.Street,
		SubThoroughfare:       addr.HouseNumber,
		Region:                addr.Region,
		InlandWater:           addr.InlandWater,
		Ocean:                 addr.Ocean,
		AreasOfInterest:       slices.Clone(addr.AreasOfInterest),
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
