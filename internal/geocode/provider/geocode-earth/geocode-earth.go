// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/http"
)

const (
	APIEndpoint       = "https://api.geocode.earth/v1/reverse"
	APISearchEndpoint = "https://api.geocode.earth/v1/search"
	APITimeout        = time.Second * 10
	name              = "geocode-earth"
)

type GeocodeEarth struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

// Geometry is a GeoJSON point, coordinates are ordered lon, lat.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
	Type        string    `json:"type"`
}

type Properties struct {
	Name          string  `json:"name"`
	Layer         string  `json:"layer"`
	Confidence    float64 `json:"confidence"`
	DisplayName   string  `json:"label"`
	City          string  `json:"locality"`
	Borough       string  `json:"borough"`
	County        string  `json:"county"`
	Continent     string  `json:"continent"`
	Country       string  `json:"country"`
	CountryCode   string  `json:"country_code"`
	CountryA      string  `json:"country_a"`
	HouseNumber   string  `json:"housenumber"`
	Neighbourhood string  `json:"neighbourhood"`
	LocalAdmin    string  `json:"localadmin"`
	Postcode      string  `json:"postalcode"`
	Road          string  `json:"street"`
	State         string  `json:"region"`
	StateCode     string  `json:"region_a"`
}

func New(client *http.Client, lang language.Tag, apikey string) *GeocodeEarth {
	return &GeocodeEarth{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}
}

func (g *GeocodeEarth) Name() string {
	return name
}

func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	query := url.Values{}
	query.Set("point.lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("point.lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("size", "1")

	response, err := g.query(ctx, APIEndpoint, query)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}
	if len(response.Features) < 1 {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	// Fill the geocode.Address struct
	result := response.Features[0].Properties
	address := geocode.Address{
		AddressFound:   true,
		Latitude:       coords.Lat,
		Longitude:      coords.Lon,
		DisplayName:    result.DisplayName,
		ISOCountryCode: strings.ToUpper(result.CountryCode),
		Country:        result.Country,
		State:          result.State,
		Region:         geocode.RegionCode(result.CountryCode, result.StateCode),
		County:         result.County,
		Municipality:   result.LocalAdmin,
		CityDistrict:   result.Borough,
		Suburb:         result.Neighbourhood,
		Postcode:       result.Postcode,
		City:           result.City,
		Street:         result.Road,
		HouseNumber:    result.HouseNumber,
	}
	if result.Name != "" && result.Name != result.Road &&
		result.Name != strings.TrimSpace(result.HouseNumber+" "+result.Road) {
		address.Name = result.Name
	}
	if result.Layer == "venue" {
		address.AreasOfInterest = geocode.AppendUnique(nil, result.Name)
	}
	if result.Layer == "marinearea" {
		address.InlandWater, address.Ocean = geocode.ClassifyWater(result.Name)
	}

	return address, nil
}

func (g *GeocodeEarth) Search(ctx context.Context, address string) (geobus.Coordinate, error) {
	query := url.Values{}
	query.Set("text", address)
	query.Set("size", "1")

	response, err := g.query(ctx, APISearchEndpoint, query)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to retrieve coordinates from geocode.earth API: %w", err)
	}
	if len(response.Features) < 1 || len(response.Features[0].Geometry.Coordinates) < 2 {
		return geobus.Coordinate{}, nil
	}

	feature := response.Features[0]
	return geobus.Coordinate{
		Lat:   feature.Geometry.Coordinates[1],
		Lon:   feature.Geometry.Coordinates[0],
		Acc:   layerAccuracy(feature.Properties.Layer),
		Found: true,
	}, nil
}

func (g *GeocodeEarth) query(ctx context.Context, endpoint string, query url.Values) (Response, error) {
	var response Response
	query.Set("api_key", g.apikey)
	query.Set("lang", g.lang.String())

	code, err := g.http.GetWithTimeout(ctx, endpoint, &response, query, nil, APITimeout)
	if err != nil {
		return response, err
	}
	switch code {
	case stdhttp.StatusOK:
		return response, nil
	case stdhttp.StatusUnauthorized, stdhttp.StatusForbidden, stdhttp.StatusTooManyRequests:
		return response, fmt.Errorf("%w: %d", geocode.ErrRejected, code)
	default:
		return response, fmt.Errorf("received non-positive response code from geocode.earth API: %d", code)
	}
}

func layerAccuracy(layer string) float64 {
	switch layer {
	case "address", "venue", "street":
		return 100
	case "postalcode", "neighbourhood":
		return geobus.AccuracyZip
	case "locality", "localadmin", "borough":
		return geobus.AccuracyCity
	case "country":
		return geobus.AccuracyCountry
	default:
		return geobus.AccuracyRegion
	}
}
