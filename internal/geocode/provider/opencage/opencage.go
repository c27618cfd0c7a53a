// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

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
	APIEndpoint = "https://api.opencagedata.com/geocode/v1/json"
	APITimeout  = time.Second * 10
	name        = "opencage"
)

type OpenCage struct {
	apikey string
	http   *http.Client
	lang   language.Tag
}

type Response struct {
	Results      []Result `json:"results"`
	Status       Status   `json:"status"`
	TotalResults int      `json:"total_results"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Result struct {
	Components  Components `json:"components"`
	Confidence  int        `json:"confidence"`
	DisplayName string     `json:"formatted"`
	Geometry    Geometry   `json:"geometry"`
}

type Components struct {
	Type           string   `json:"_type"`
	Category       string   `json:"_category"`
	NomalizedCity  string   `json:"_normalized_city"`
	ISO31662       []string `json:"ISO_3166-2"`
	Attraction     string   `json:"attraction"`
	BodyOfWater    string   `json:"body_of_water"`
	Building       string   `json:"building"`
	City           string   `json:"city"`
	CityDistrict   string   `json:"city_district"`
	Continent      string   `json:"continent"`
	Country        string   `json:"country"`
	CountryCode    string   `json:"country_code"`
	County         string   `json:"county"`
	HouseNumber    string   `json:"house_number"`
	Municipality   string   `json:"municipality"`
	Park           string   `json:"park"`
	PoliticalUnion string   `json:"political_union"`
	Postcode       string   `json:"postcode"`
	Road           string   `json:"road"`
	State          string   `json:"state"`
	StateCode      string   `json:"state_code"`
	Suburb         string   `json:"suburb"`
	Town           string   `json:"town"`
	Village        string   `json:"village"`
}

type Geometry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lng"`
}

func New(client *http.Client, lang language.Tag, apikey string) *OpenCage {
	return &OpenCage{
		apikey: apikey,
		lang:   lang,
		http:   client,
	}
}

func (o *OpenCage) Name() string {
	return name
}

func (o *OpenCage) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	response, err := o.query(ctx, fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to retrieve address details from OpenCage API: %w", err)
	}
	if len(response.Results) == 0 {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	result := response.Results[0].Components
	address := geocode.Address{
		AddressFound:   true,
		Latitude:       response.Results[0].Geometry.Lat,
		Longitude:      response.Results[0].Geometry.Lon,
		DisplayName:    response.Results[0].DisplayName,
		Name:           result.Building,
		ISOCountryCode: strings.ToUpper(result.CountryCode),
		Country:        result.Country,
		State:          result.State,
		Region:         geocode.RegionCode(result.CountryCode, result.StateCode),
		County:         result.County,
		Municipality:   result.Municipality,
		CityDistrict:   result.CityDistrict,
		Postcode:       result.Postcode,
		City:           result.NomalizedCity,
		Suburb:         result.Suburb,
		Street:         result.Road,
		HouseNumber:    result.HouseNumber,
	}
	if len(result.ISO31662) > 0 {
		address.Region = result.ISO31662[0]
	}
	if address.City == "" {
		for _, city := range []string{result.City, result.Town, result.Village} {
			if city != "" {
				address.City = city
				break
			}
		}
	}
	address.InlandWater, address.Ocean = geocode.ClassifyWater(result.BodyOfWater)
	address.AreasOfInterest = geocode.AppendUnique(nil, result.Attraction, result.Park)

	return address, nil
}

func (o *OpenCage) Search(ctx context.Context, address string) (geobus.Coordinate, error) {
	response, err := o.query(ctx, address)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to retrieve coordinates from OpenCage API: %w", err)
	}
	if len(response.Results) == 0 {
		return geobus.Coordinate{}, nil
	}
	return geobus.Coordinate{
		Lat:   response.Results[0].Geometry.Lat,
		Lon:   response.Results[0].Geometry.Lon,
		Acc:   confidenceAccuracy(response.Results[0].Confidence),
		Found: true,
	}, nil
}

func (o *OpenCage) query(ctx context.Context, q string) (Response, error) {
	var response Response

	query := url.Values{}
	query.Set("key", o.apikey)
	query.Set("q", q)
	query.Set("limit", "1")
	query.Set("no_annotations", "1")
	query.Set("no_record", "1")
	query.Set("language", o.lang.String())

	code, err := o.http.GetWithTimeout(ctx, APIEndpoint, &response, query, nil, APITimeout)
	if err != nil {
		return response, err
	}
	switch code {
	case stdhttp.StatusOK:
		return response, nil
	case stdhttp.StatusUnauthorized, stdhttp.StatusPaymentRequired, stdhttp.StatusForbidden,
		stdhttp.StatusTooManyRequests:
		return response, fmt.Errorf("%w: %d %s", geocode.ErrRejected, code, response.Status.Message)
	default:
		return response, fmt.Errorf("unexpected response code %d: %s", code, response.Status.Message)
	}
}

// confidenceAccuracy maps the OpenCage confidence (1-10, 10 being the smallest bounding box)
// to an accuracy radius.
func confidenceAccuracy(confidence int) float64 {
	switch {
	case confidence >= 9:
		return 250
	case confidence >= 7:
		return 1000
	case confidence >= 5:
		return geobus.AccuracyZip
	case confidence >= 3:
		return geobus.AccuracyCity
	default:
		return geobus.AccuracyRegion
	}
}
