// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/http"
	"github.com/wneessen/place/internal/logger"
	"github.com/wneessen/place/internal/testhelper"
)

const (
	cityExpected = "Quartier 205, 67, Friedrichstraße, Friedrichstadt, Mitte, Berlin, 10117, Deutschland"
	cityResponse = `{"place_id":1,"lat":"52.5129","lon":"13.3910","category":"building","type":"retail",
"name":"Quartier 205","display_name":"Quartier 205, 67, Friedrichstraße, Friedrichstadt, Mitte, Berlin, 10117, Deutschland",
"address":{"building":"Quartier 205","house_number":"67","road":"Friedrichstraße","quarter":"Friedrichstadt",
"suburb":"Mitte","city_district":"Mitte","city":"Berlin","ISO3166-2-lvl4":"DE-BE","postcode":"10117",
"country":"Deutschland","country_code":"de","tourism":"Quartier 205"}}`
	townResponse = `{"lat":"53.90712","lon":"-1.69404","category":"highway","type":"residential","name":"Bridge Street",
"display_name":"Bridge Street, Otley, Leeds, England, LS21 1BQ, United Kingdom",
"address":{"road":"Bridge Street","town":"Otley","county":"West Yorkshire","state":"England",
"ISO3166-2-lvl4":"GB-ENG","postcode":"LS21 1BQ","country":"United Kingdom","country_code":"gb"}}`
	villageResponse = `{"lat":"51.46292","lon":"-2.31850","category":"highway","type":"residential","name":"High Street",
"display_name":"High Street, Marshfield, England, SN14 8LP, United Kingdom",
"address":{"road":"High Street","village":"Marshfield","state":"England","postcode":"SN14 8LP",
"country":"United Kingdom","country_code":"gb"}}`
	lakeResponse = `{"lat":"52.4380","lon":"13.6480","category":"natural","type":"water","name":"Müggelsee",
"display_name":"Müggelsee, Treptow-Köpenick, Berlin, Deutschland",
"address":{"natural":"Müggelsee","city":"Berlin","country":"Deutschland","country_code":"de"}}`
	seaResponse    = `{"error":"Unable to geocode"}`
	searchResponse = `[{"lat":"52.5170365","lon":"13.3888599","display_name":"Berlin, Deutschland"}]`

	testHitTTL  = 1 * time.Second
	testMissTTL = 1 * time.Second

	townExpected    = "Otley"
	villageExpected = "Marshfield"
)

var (
	cityCoords    = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	villageCoords = geobus.Coordinate{Lat: 51.46292, Lon: -2.31850}
	townCoords    = geobus.Coordinate{Lat: 53.90712, Lon: -1.69404}
)

func TestNew(t *testing.T) {
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoder(t)
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
}

func TestNominatim_Reverse(t *testing.T) {
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
		if !strings.Contains(query, "accept-language=en") {
			t.Errorf("expected query to request english results, got %q", query)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		if !strings.EqualFold(addr.DisplayName, cityExpected) {
			t.Errorf("expected address to be %q, got %q", cityExpected, addr.DisplayName)
		}
		checks := map[string][2]string{
			"name":         {addr.Name, "Quartier 205"},
			"country code": {addr.ISOCountryCode, "DE"},
			"region":       {addr.Region, "DE-BE"},
			"city":         {addr.City, "Berlin"},
			"suburb":       {addr.Suburb, "Mitte"},
			"street":       {addr.Street, "Friedrichstraße"},
			"house number": {addr.HouseNumber, "67"},
			"postcode":     {addr.Postcode, "10117"},
		}
		for field, check := range checks {
			if check[0] != check[1] {
				t.Errorf("expected %s to be %q, got %q", field, check[1], check[0])
			}
		}
		if len(addr.AreasOfInterest) != 1 || addr.AreasOfInterest[0] != "Quartier 205" {
			t.Errorf("expected areas of interest to contain Quartier 205, got %v", addr.AreasOfInterest)
		}
		if addr.Latitude != cityCoords.Lat || addr.Longitude != cityCoords.Lon {
			t.Errorf("expected %f/%f, got %f/%f", cityCoords.Lat, cityCoords.Lon, addr.Latitude, addr.Longitude)
		}
	})
	t.Run("reverse cached geocoding succeeds", func(t *testing.T) {
		coder := geocode.NewCachedGeocoder(testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, cityResponse)),
			testHitTTL, testMissTTL)
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		addr, err = coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.CacheHit {
			t.Error("expected cache hit")
		}
	})
	t.Run("reverse geocoding with town set should return the correct city", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, townResponse))
		addr, err := coder.Reverse(t.Context(), townCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.EqualFold(addr.City, townExpected) {
			t.Errorf("expected city to be %q, got %q", townExpected, addr.City)
		}
		if addr.County != "West Yorkshire" {
			t.Errorf("expected county to be West Yorkshire, got %q", addr.County)
		}
		if addr.Name != "" {
			t.Errorf("expected street names not to be used as name, got %q", addr.Name)
		}
	})
	t.Run("reverse geocoding with village set should return the correct city", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, villageResponse))
		addr, err := coder.Reverse(t.Context(), villageCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.EqualFold(addr.City, villageExpected) {
			t.Errorf("expected city to be %q, got %q", villageExpected, addr.City)
		}
		if addr.Region != "" {
			t.Errorf("expected region to be empty, got %q", addr.Region)
		}
	})
	t.Run("reverse geocoding of a lake returns inland water", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, lakeResponse))
		addr, err := coder.Reverse(t.Context(), geobus.Coordinate{Lat: 52.438, Lon: 13.648})
		if err != nil {
			t.Fatal(err)
		}
		if addr.InlandWater != "Müggelsee" || addr.Ocean != "" {
			t.Errorf("expected inland water Müggelsee, got %q/%q", addr.InlandWater, addr.Ocean)
		}
	})
	t.Run("unresolvable position returns no address", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, seaResponse))
		addr, err := coder.Reverse(t.Context(), geobus.Coordinate{Lat: 30, Lon: -40})
		if err != nil {
			t.Fatal(err)
		}
		if addr.AddressFound {
			t.Error("expected no address to be found")
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
	t.Run("rate limited requests are rejected", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(429, `{}`))
		if _, err := coder.Reverse(t.Context(), cityCoords); !errors.Is(err, geocode.ErrRejected) {
			t.Fatalf("expected rejected error, got %s", err)
		}
	})
	t.Run("reverse geocoding fails on NaN latitude response", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200,
			strings.Replace(cityResponse, `"lat":"52.5129"`, `"lat":"NaN°"`, 1)))
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil || !strings.Contains(err.Error(), "failed to parse latitude") {
			t.Errorf("expected error to contain 'failed to parse latitude', got %s", err)
		}
	})
	t.Run("reverse geocoding fails on NaN longitude response", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200,
			strings.Replace(cityResponse, `"lon":"13.3910"`, `"lon":"NaN°"`, 1)))
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil || !strings.Contains(err.Error(), "failed to parse longitude") {
			t.Errorf("expected error to contain 'failed to parse longitude', got %s", err)
		}
	})
}

func TestNominatim_Search(t *testing.T) {
	t.Run("search succeeds", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, searchResponse))
		coords, err := coder.Search(t.Context(), "Berlin")
		if err != nil {
			t.Fatal(err)
		}
		if !coords.Found {
			t.Fatal("expected coordinates to be found")
		}
		if coords.Lat != 52.5170365 || coords.Lon != 13.3888599 {
			t.Errorf("expected 52.5170365/13.3888599, got %f/%f", coords.Lat, coords.Lon)
		}
	})
	t.Run("search without results is not found", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, `[]`))
		coords, err := coder.Search(t.Context(), "Atlantis")
		if err != nil {
			t.Fatal(err)
		}
		if coords.Found {
			t.Error("expected coordinates not to be found")
		}
	})
	t.Run("search fails on broken coordinates", func(t *testing.T) {
		coder := testCoderWithRoundtripFunc(t, testhelper.JSONResponse(200, `[{"lat":"x","lon":"1"}]`))
		if _, err := coder.Search(t.Context(), "Berlin"); err == nil {
			t.Error("expected search to fail")
		}
	})
}

func TestNominatim_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := testCoder(t)
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		if addr.ISOCountryCode != "DE" {
			t.Errorf("expected country code DE, got %q", addr.ISOCountryCode)
		}
	})
}

func testCoder(_ *testing.T) geocode.Geocoder {
	return New(http.New(logger.NewLogger(0, io.Discard)), language.English)
}

func testCoderWithRoundtripFunc(_ *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) geocode.Geocoder {
	testHttpClient := http.New(logger.NewLogger(0, io.Discard))
	testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	return New(testHttpClient, language.English)
}
