// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package opencage

import (
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/http"
	"github.com/wneessen/place/internal/logger"
	"github.com/wneessen/place/internal/testhelper"
)

const (
	cityExpected = "Quartier 205, Friedrichstraße 67, 10117 Berlin, Germany"
	cityResponse = `{"results":[{"components":{"_type":"building","_category":"commerce",
"_normalized_city":"Berlin","ISO_3166-1_alpha-2":"DE","ISO_3166-2":["DE-BE"],"building":"Quartier 205",
"city":"Berlin","city_district":"Mitte","continent":"Europe","country":"Germany","country_code":"de",
"house_number":"67","postcode":"10117","road":"Friedrichstraße","state":"Berlin","state_code":"BE",
"suburb":"Mitte","attraction":"Quartier 205"},"confidence":10,
"formatted":"Quartier 205, Friedrichstraße 67, 10117 Berlin, Germany",
"geometry":{"lat":52.5129,"lng":13.391}}],"status":{"code":200,"message":"OK"},"total_results":1}`
	townResponse = `{"results":[{"components":{"_type":"road","country":"United Kingdom","country_code":"gb",
"county":"West Yorkshire","road":"Bridge Street","state":"England","state_code":"ENG","town":"Otley"},
"confidence":9,"formatted":"Bridge Street, Otley LS21 1BQ, United Kingdom",
"geometry":{"lat":53.90712,"lng":-1.69404}}],"status":{"code":200,"message":"OK"},"total_results":1}`
	oceanResponse = `{"results":[{"components":{"_type":"body_of_water","body_of_water":"North Atlantic Ocean"},
"confidence":1,"formatted":"North Atlantic Ocean","geometry":{"lat":30,"lng":-40}}],
"status":{"code":200,"message":"OK"},"total_results":1}`
	emptyResponse  = `{"results":[],"status":{"code":200,"message":"OK"},"total_results":0}`
	quotaResponse  = `{"results":[],"status":{"code":402,"message":"quota exceeded"},"total_results":0}`
	searchResponse = `{"results":[{"components":{"_type":"city","city":"Berlin"},"confidence":4,
"formatted":"Berlin, Germany","geometry":{"lat":52.5170365,"lng":13.3888599}}],
"status":{"code":200,"message":"OK"},"total_results":1}`
)

var (
	cityCoords = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	townCoords = geobus.Coordinate{Lat: 53.90712, Lon: -1.69404}
)

func TestNew(t *testing.T) {
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, emptyResponse))
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
}

func TestOpenCage_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		var query string
		coder := testCoderWithRoundtripFunc(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query = req.URL.RawQuery
			return testhelper.JSONResponse(200, cityResponse)(req)
		})
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(query, "key=test-key") {
			t.Errorf("expected API key to be sent, got %q", query)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		if addr.DisplayName != cityExpected {
			t.Errorf("expected address to be %q, got %q", cityExpected, addr.DisplayName)
		}
		if addr.Name != "Quartier 205" || addr.Region != "DE-BE" || addr.ISOCountryCode != "DE" {
			t.Errorf("unexpected name, region or country code: %q/%q/%q", addr.Name, addr.Region, addr.ISOCountryCode)
		}
		if addr.City != "Berlin" || addr.Street != "Friedrichstraße" || addr.HouseNumber != "67" {
			t.Errorf("unexpected city, street or house number: %q/%q/%q", addr.City, addr.Street, addr.HouseNumber)
		}
		if len(addr.AreasOfInterest) != 1 || addr.AreasOfInterest[0] != "Quartier 205" {
			t.Errorf("expected areas of interest to contain Quartier 205, got %v", addr.AreasOfInterest)
		}
	})
	t.Run("town is used as city and region is derived from the state code", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, townResponse))
		addr, err := coder.Reverse(t.Context(), townCoords)
		if err != nil {
			t.Fatal(err)
		}
		if addr.City != "Otley" {
			t.Errorf("expected city to be Otley, got %q", addr.City)
		}
		if addr.Region != "GB-ENG" {
			t.Errorf("expected region to be GB-ENG, got %q", addr.Region)
		}
		if addr.County != "West Yorkshire" {
			t.Errorf("expected county to be West Yorkshire, got %q", addr.County)
		}
	})
	t.Run("open water is reported as ocean", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, oceanResponse))
		addr, err := coder.Reverse(t.Context(), geobus.Coordinate{Lat: 30, Lon: -40})
		if err != nil {
			t.Fatal(err)
		}
		if addr.Ocean != "North Atlantic Ocean" || addr.InlandWater != "" {
			t.Errorf("expected ocean to be set, got %q/%q", addr.Ocean, addr.InlandWater)
		}
	})
	t.Run("no results returns no address", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, emptyResponse))
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if addr.AddressFound {
			t.Error("expected no address to be found")
		}
	})
	t.Run("exceeded quota is rejected", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(402, quotaResponse))
		if _, err := coder.Reverse(t.Context(), cityCoords); !errors.Is(err, geocode.ErrRejected) {
			t.Fatalf("expected rejected error, got %s", err)
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		})
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected API request to fail")
		}
	})
}

func TestOpenCage_Search(t *testing.T) {
	t.Run("search succeeds", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, searchResponse))
		coords, err := coder.Search(t.Context(), "Berlin")
		if err != nil {
			t.Fatal(err)
		}
		if !coords.Found || coords.Lat != 52.5170365 || coords.Lon != 13.3888599 {
			t.Errorf("unexpected coordinates: %+v", coords)
		}
		if coords.Acc != geobus.AccuracyCity {
			t.Errorf("expected city accuracy, got %f", coords.Acc)
		}
	})
	t.Run("search without results is not found", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, emptyResponse))
		coords, err := coder.Search(t.Context(), "Atlantis")
		if err != nil {
			t.Fatal(err)
		}
		if coords.Found {
			t.Error("expected coordinates not to be found")
		}
	})
}

func testCoderWithRoundtripFunc(_ *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) geocode.Geocoder {
	testHttpClient := http.New(logger.NewLogger(0, io.Discard))
	testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	return New(testHttpClient, language.English, "test-key")
}
