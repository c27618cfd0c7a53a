// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/http"
)

const (
	APISearchEndpoint  = "https://nominatim.openstreetmap.org/search"
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"
)

type Nominatim struct {
	http *http.Client
	lang language.Tag
}

type ReverseResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
	Error       string  `json:"error"`
}

type SearchResult struct {
	APILat      string `json:"lat"`
	APILon      string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type Address struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	Suburb       string `json:"suburb"`
	Quarter      string `json:"quarter"`
	Municipality string `json:"municipality"`
	CityDistrict string `json:"city_district"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	County       string `json:"county"`
	State        string `json:"state"`
	ISO31662Lvl4 string `json:"ISO3166-2-lvl4"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Amenity      string `json:"amenity"`
	Tourism      string `json:"tourism"`
	Leisure      string `json:"leisure"`
	Historic     string `json:"historic"`
	Water        string `json:"water"`
}

func New(client *http.Client, lang language.Tag) *Nominatim {
	return &Nominatim{
		lang: lang,
		http: client,
	}
}

func (n *Nominatim) Name() string {
	return name
}

func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("addressdetails", "1")
	query.Set("lat", fmt.Sprintf("%f", coords.Lat))
	query.Set("lon", fmt.Sprintf("%f", coords.Lon))
	query.Set("accept-language", n.lang.String())

	code, err := n.http.GetWithTimeout(ctx, APIReverseEndpoint, &result, query, nil, APITimeout)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if err = checkStatus(code); err != nil {
		return geocode.Address{}, err
	}

	// Nominatim reports positions it can't resolve (e.g. open sea) as an error object
	if result.Error != "" {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	address := geocode.Address{
		AddressFound:   true,
		DisplayName:    result.DisplayName,
		ISOCountryCode: strings.ToUpper(result.Address.CountryCode),
		Country:        result.Address.Country,
		State:          result.Address.State,
		Region:         geocode.RegionCode(result.Address.CountryCode, result.Address.ISO31662Lvl4),
		County:         result.Address.County,
		Municipality:   result.Address.Municipality,
		CityDistrict:   result.Address.CityDistrict,
		Postcode:       result.Address.Postcode,
		City:           firstNonEmpty(result.Address.City, result.Address.Town, result.Address.Village),
		Suburb:         firstNonEmpty(result.Address.Suburb, result.Address.Quarter),
		Street:         result.Address.Road,
		HouseNumber:    result.Address.HouseNumber,
	}
	if result.Name != "" && result.Name != result.Address.Road {
		address.Name = result.Name
	}
	address.InlandWater, address.Ocean = geocode.ClassifyWater(result.Address.Water)
	if address.InlandWater == "" && address.Ocean == "" && isWater(result.Category, result.Type) {
		address.InlandWater, address.Ocean = geocode.ClassifyWater(result.Name)
	}
	address.AreasOfInterest = geocode.AppendUnique(nil, result.Address.Tourism, result.Address.Leisure,
		result.Address.Historic, result.Address.Amenity)

	address.Latitude, err = strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	address.Longitude, err = strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return address, nil
}

func (n *Nominatim) Search(ctx context.Context, address string) (geobus.Coordinate, error) {
	var result []SearchResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("limit", "1")
	query.Set("q", address)
	query.Set("accept-language", n.lang.String())

	code, err := n.http.GetWithTimeout(ctx, APISearchEndpoint, &result, query, nil, APITimeout)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to fetch address details from Nominatim API: %w", err)
	}
	if err = checkStatus(code); err != nil {
		return geobus.Coordinate{}, err
	}
	if len(result) < 1 {
		return geobus.Coordinate{}, nil
	}

	coords := geobus.Coordinate{Found: true, Acc: geobus.AccuracyCity}
	coords.Lat, err = strconv.ParseFloat(result[0].APILat, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	coords.Lon, err = strconv.ParseFloat(result[0].APILon, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return coords, nil
}

func checkStatus(code int) error {
	switch code {
	case stdhttp.StatusOK:
		return nil
	case stdhttp.StatusForbidden, stdhttp.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", geocode.ErrRejected, code)
	default:
		return fmt.Errorf("unexpected response code from Nominatim API: %d", code)
	}
}

func isWater(category, typ string) bool {
	return (category == "natural" || category == "waterway") &&
		(typ == "water" || typ == "lake" || typ == "river" || typ == "bay" || typ == "strait")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
