// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/http"
)

const (
	APIEndpoint   = "https://reallyfreegeoip.org/json/"
	LookupTimeout = time.Second * 5
	name          = "geoip"
)

type GeolocationGeoIPProvider struct {
	name     string
	endpoint string
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	MetroCode   int     `json:"metro_code"`
}

func NewGeolocationGeoIPProvider(http *http.Client) *GeolocationGeoIPProvider {
	return &GeolocationGeoIPProvider{
		name:     name,
		endpoint: APIEndpoint,
		http:     http,
		period:   30 * time.Minute,
		ttl:      60 * time.Minute,
	}
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

// Locate resolves the public IP address of the host to a coordinate.
func (p *GeolocationGeoIPProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	coord, err := p.locate(ctx)
	if err != nil {
		return geobus.Result{}, err
	}
	return p.createResult(key, coord), nil
}

// LookupStream periodically resolves the public IP address and emits a result whenever the
// position changed significantly.
func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.period, p.Locate)
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGeoIPProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:                    key,
		Lat:                    coord.Lat,
		Lon:                    coord.Lon,
		AccuracyMeters:         coord.Acc,
		VerticalAccuracyMeters: geobus.UnknownAccuracy,
		Source:                 p.name,
		At:                     time.Now(),
		TTL:                    p.ttl,
	}
}

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	result := new(APIResult)
	if _, err := p.http.GetWithTimeout(ctx, p.endpoint, result, nil, nil, LookupTimeout); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if result.CountryCode == "" && result.Latitude == 0 && result.Longitude == 0 {
		return geobus.Coordinate{}, fmt.Errorf("%w: IP address could not be resolved", geobus.ErrNoFix)
	}

	return geobus.Coordinate{
		Lat: geobus.Truncate(result.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Longitude, geobus.TruncPrecision),
		Acc: result.accuracy(),
	}, nil
}

// accuracy estimates the accuracy radius from the most specific field the API returned.
func (r *APIResult) accuracy() float64 {
	switch {
	case r.ZipCode != "":
		return geobus.AccuracyZip
	case r.City != "":
		return geobus.AccuracyCity
	case r.RegionCode != "":
		return geobus.AccuracyRegion
	case r.CountryCode != "":
		return geobus.AccuracyCountry
	default:
		return geobus.AccuracyUnknown
	}
}
