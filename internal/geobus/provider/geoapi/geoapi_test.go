// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/http"
	"github.com/wneessen/place/internal/logger"
	"github.com/wneessen/place/internal/testhelper"
)

const (
	testLat = 40.7185
	testLon = -74.0025
)

// geoapiResponse renders an API response with the given location fields.
func geoapiResponse(country, region, city, zip, lat, lon string) string {
	return fmt.Sprintf(`{"ip":"192.0.2.1","location":{"country":%q,"countryName":"United States",`+
		`"region":%q,"city":%q,"postalCode":%q,"timezone":"America/New_York",`+
		`"coordinates":{"latitude":%q,"longitude":%q}}}`, country, region, city, zip, lat, lon)
}

func testProvider(t *testing.T, fn func(*stdhttp.Request) (*stdhttp.Response, error)) *GeolocationGeoAPIProvider {
	t.Helper()
	client := http.New(logger.NewLogger(0, io.Discard))
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	provider, err := NewGeolocationGeoAPIProvider(client)
	if err != nil {
		t.Fatalf("failed to create GeoAPI provider: %s", err)
	}
	return provider
}

func TestNewGeolocationGeoAPIProvider(t *testing.T) {
	t.Run("new GeoAPI provider succeeds", func(t *testing.T) {
		provider := testProvider(t, testhelper.JSONResponse(200, "{}"))
		if provider.endpoint != apiEndpoint {
			t.Errorf("expected endpoint to be %s, got %s", apiEndpoint, provider.endpoint)
		}
	})
	t.Run("GeoAPI without http client fails ", func(t *testing.T) {
		provider, err := NewGeolocationGeoAPIProvider(nil)
		if !errors.Is(err, ErrHTTPClientRequired) {
			t.Fatalf("expected provider to fail with missing http client, got %s", err)
		}
		if provider != nil {
			t.Fatal("expected provider to be nil")
		}
	})
}

func TestGeolocationGeoAPIProvider_Name(t *testing.T) {
	provider := testProvider(t, testhelper.JSONResponse(200, "{}"))
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestNewGeolocationGeoAPIProvider_locate(t *testing.T) {
	t.Run("locate fails on invalid coordinate parsing", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "latitude", body: geoapiResponse("US", "NY", "New York", "10013", "north", "-74.00251")},
			{name: "longitude", body: geoapiResponse("US", "NY", "New York", "10013", "40.71854", "")},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				provider := testProvider(t, testhelper.JSONResponse(200, tc.body))
				if _, _, _, err := provider.locate(t.Context()); err == nil {
					t.Error("expected locate to fail")
				}
			})
		}
	})
	t.Run("locate succeeds with different accuracies", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want float64
		}{
			{"zip", geoapiResponse("US", "NY", "New York", "10013", "40.71854", "-74.00251"), geobus.AccuracyZip},
			{"city", geoapiResponse("US", "NY", "New York", "", "40.71854", "-74.00251"), geobus.AccuracyCity},
			{"region", geoapiResponse("US", "NY", "", "", "40.71854", "-74.00251"), geobus.AccuracyRegion},
			{"country", geoapiResponse("US", "", "", "", "40.71854", "-74.00251"), geobus.AccuracyCountry},
			{"unknown", geoapiResponse("", "", "", "", "40.71854", "-74.00251"), geobus.AccuracyUnknown},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				provider := testProvider(t, testhelper.JSONResponse(200, tc.body))
				lat, lon, acc, err := provider.locate(t.Context())
				if err != nil {
					t.Fatalf("failed to locate coordinates via GeoAPI: %s", err)
				}
				if lat != testLat {
					t.Errorf("expected latitude to be %f, got %f", testLat, lat)
				}
				if lon != testLon {
					t.Errorf("expected longitude to be %f, got %f", testLon, lon)
				}
				if acc != tc.want {
					t.Errorf("expected accuracy to be %f, got %f", tc.want, acc)
				}
			})
		}
	})
	t.Run("locate fails on API request", func(t *testing.T) {
		provider := testProvider(t, func(*stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		})
		if _, _, _, err := provider.locate(t.Context()); err == nil {
			t.Error("expected locate to fail")
		}
	})
}

func TestGeolocationGeoAPIProvider_Locate(t *testing.T) {
	provider := testProvider(t, testhelper.JSONResponse(200,
		geoapiResponse("US", "NY", "New York", "10013", "40.71854", "-74.00251")))
	result, err := provider.Locate(t.Context(), "test")
	if err != nil {
		t.Fatalf("failed to locate: %s", err)
	}
	if result.Key != "test" {
		t.Errorf("expected key to be %s, got %s", "test", result.Key)
	}
	if result.AccuracyMeters != geobus.AccuracyZip {
		t.Errorf("expected accuracy to be %d, got %f", geobus.AccuracyZip, result.AccuracyMeters)
	}
	if result.Source != provider.Name() {
		t.Errorf("expected source to be %s, got %s", provider.Name(), result.Source)
	}
	if result.TTL != provider.ttl {
		t.Errorf("expected TTL to be %d, got %d", provider.ttl, result.TTL)
	}
}

func TestGeolocationGeoAPIProvider_LookupStream(t *testing.T) {
	t.Run("lookup stream fails during lookup", func(t *testing.T) {
		runCount := 0
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := testProvider(t, testhelper.JSONResponse(200, "{}"))
			provider.period = time.Millisecond * 10
			provider.locateFn = func(ctx context.Context) (float64, float64, float64, error) {
				if runCount == 0 {
					runCount++
					return 0, 0, 0, errors.New("intentionally failing")
				}
				return 1.0, 2.0, 3.0, nil
			}

			var result geobus.Result
			select {
			case r := <-provider.LookupStream(ctx, "test"):
				result = r
				cancel()
			case <-ctx.Done():
				t.Fatalf("context done before result: %v", ctx.Err())
			}
			synctest.Wait()

			if result.Lat != 1.0 {
				t.Errorf("expected latitude to be %f, got %f", 1.0, result.Lat)
			}
			if result.Lon != 2.0 {
				t.Errorf("expected longitude to be %f, got %f", 2.0, result.Lon)
			}
			if result.AccuracyMeters != 3.0 {
				t.Errorf("expected accuracy to be %f, got %f", 3.0, result.AccuracyMeters)
			}
		})
	})
}
