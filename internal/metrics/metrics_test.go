// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_QueryFinished(t *testing.T) {
	m := New()
	m.QueryFinished("ok", "gpsd", time.Second)
	m.QueryFinished("ok", "gpsd", time.Second*2)
	m.QueryFinished("timeout", "", time.Second*5)

	if got := testutil.ToFloat64(m.Queries.WithLabelValues("ok", "gpsd")); got != 2 {
		t.Errorf("expected 2 successful queries, got %f", got)
	}
	if got := testutil.ToFloat64(m.Queries.WithLabelValues("timeout", "none")); got != 1 {
		t.Errorf("expected 1 timed out query without source, got %f", got)
	}
	if got := testutil.CollectAndCount(m.QueryDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

func TestMetrics_GeocodeAndCache(t *testing.T) {
	m := New()
	m.GeocodeFinished("ok")
	m.GeocodeFinished("error")
	m.CacheResult("hit")
	m.CacheResult("hit")
	m.CacheResult("miss")
	m.FixPublished("geoip")

	if got := testutil.ToFloat64(m.Geocodes.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 geocode error, got %f", got)
	}
	if got := testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")); got != 2 {
		t.Errorf("expected 2 cache hits, got %f", got)
	}
	if got := testutil.ToFloat64(m.Fixes.WithLabelValues("geoip")); got != 1 {
		t.Errorf("expected 1 published fix, got %f", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.QueryFinished("denied", "none", time.Millisecond)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	body, err := io.ReadAll(recorder.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `place_queries_total{source="none",status="denied"} 1`) {
		t.Errorf("expected query counter in output, got:\n%s", body)
	}
}
