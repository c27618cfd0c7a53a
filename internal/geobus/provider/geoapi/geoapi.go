// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/http"
)

const (
	apiEndpoint   = "https://geoapi.info/api/geo"
	lookupTimeout = time.Second * 5
	name          = "geoapi"
)

var ErrHTTPClientRequired = errors.New("http client is required")

type GeolocationGeoAPIProvider struct {
	name     string
	endpoint string
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (lat, lon, acc float64, err error)
}

type APIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeolocationGeoAPIProvider(http *http.Client) (*GeolocationGeoAPIProvider, error) {
	if http == nil {
		return nil, ErrHTTPClientRequired
	}
	provider := &GeolocationGeoAPIProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     http,
		period:   time.Minute * 10,
		ttl:      time.Hour * 2,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoAPIProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoAPIProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	lat, lon, acc, err := p.locateFn(ctx)
	if err != nil {
		return geobus.Result{}, err
	}
	return p.createResult(key, geobus.Coordinate{Lat: lat, Lon: lon, Acc: acc}), nil
}

// LookupStream periodically queries the API and emits a result whenever the position changed
// significantly.
func (p *GeolocationGeoAPIProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.period, p.Locate)
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGeoAPIProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

func (p *GeolocationGeoAPIProvider) locate(ctx context.Context) (lat, lon, acc float64, err error) {
	result := new(APIResult)
	if _, err = p.http.GetWithTimeout(ctx, p.endpoint, result, nil, nil, lookupTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	acc = geobus.AccuracyUnknown
	if result.Location.CountryCode != "" {
		acc = geobus.AccuracyCountry
	}
	if result.Location.Region != "" {
		acc = geobus.AccuracyRegion
	}
	if result.Location.City != "" {
		acc = geobus.AccuracyCity
	}
	if result.Location.ZipCode != "" {
		acc = geobus.AccuracyZip
	}

	lat, err = strconv.ParseFloat(result.Location.Coordinates.Latitude, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err = strconv.ParseFloat(result.Location.Coordinates.Longitude, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}

	return geobus.Truncate(lat, geobus.TruncPrecision),
		geobus.Truncate(lon, geobus.TruncPrecision), acc, nil
}
