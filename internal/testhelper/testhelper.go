// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package testhelper provides shared helpers for the package tests.
package testhelper

import (
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
)

// MockRoundTripper is a http.RoundTripper that hands every request to Fn.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// JSONResponse returns a RoundTrip function that answers every request with the given
// status code and body.
func JSONResponse(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "application/json")
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     header,
		}, nil
	}
}

// PerformIntegrationTests skips the test unless PLACE_INTEGRATION_TESTS is set. Integration
// tests talk to the real APIs.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if os.Getenv("PLACE_INTEGRATION_TESTS") == "" {
		t.Skip("skipping integration test, set PLACE_INTEGRATION_TESTS to run it")
	}
}
