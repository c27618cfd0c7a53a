// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfig = `loglevel = "DEBUG"
locale = "de"

[locate]
timeout = "20s"
desired_accuracy = 100
placemark = true

[geolocation]
disable_geoip = true
require_agent = true
agents = ["org.freedesktop.GeoClue2.DemoAgent", "org.gnome.Shell"]

[geocoder]
provider = "opencage"
apikey = "secret"

[geocoder.cache]
backend = "redis"
redis_addr = "redis:6379"
redis_db = 2
`

func TestNew(t *testing.T) {
	const (
		expectLogLevel       = slog.LevelInfo
		expectLocateTimeout  = time.Second * 10
		expectGeocodeTimeout = time.Second * 5
		expectOutput         = time.Second * 30
	)
	t.Run("new config with all defaults set", func(t *testing.T) {
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != expectLogLevel {
			t.Errorf("expected log level to be: %s, got %s", expectLogLevel, conf.LogLevel)
		}
		if conf.Locate.Timeout != expectLocateTimeout {
			t.Errorf("expected locate timeout to be: %s, got %s", expectLocateTimeout, conf.Locate.Timeout)
		}
		if conf.GeoCoder.Timeout != expectGeocodeTimeout {
			t.Errorf("expected geocoder timeout to be: %s, got %s", expectGeocodeTimeout, conf.GeoCoder.Timeout)
		}
		if conf.Watch.OutputInterval != expectOutput {
			t.Errorf("expected output interval to be: %s, got %s", expectOutput, conf.Watch.OutputInterval)
		}
		if conf.GeoCoder.Provider != "nominatim" || conf.GeoCoder.Cache.Backend != "memory" {
			t.Errorf("unexpected geocoder defaults: %s/%s", conf.GeoCoder.Provider, conf.GeoCoder.Cache.Backend)
		}
		if conf.GeoLocation.GPSDAddress != "localhost:2947" {
			t.Errorf("unexpected gpsd address: %s", conf.GeoLocation.GPSDAddress)
		}
		if conf.Locate.DesktopID != AppName {
			t.Errorf("expected desktop id to be %s, got %s", AppName, conf.Locate.DesktopID)
		}
		if conf.Templates.Text != "" {
			t.Errorf("expected no text template, got %q", conf.Templates.Text)
		}
		if !strings.HasSuffix(conf.GeoLocation.File, filepath.Join(AppName, "geolocation")) {
			t.Errorf("unexpected geolocation file: %s", conf.GeoLocation.File)
		}
		if !strings.HasSuffix(conf.GeoLocation.CitynameFile, filepath.Join(AppName, "cityname")) {
			t.Errorf("unexpected cityname file: %s", conf.GeoLocation.CitynameFile)
		}
	})
	t.Run("values from env override defaults", func(t *testing.T) {
		t.Setenv("PLACE_LOCATE_TIMEOUT", "3s")
		t.Setenv("PLACE_GEOCODER_PROVIDER", "Geocode-Earth")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Locate.Timeout != time.Second*3 {
			t.Errorf("expected locate timeout to be 3s, got %s", conf.Locate.Timeout)
		}
		if conf.GeoCoder.Provider != "geocode-earth" {
			t.Errorf("expected provider to be normalized, got %s", conf.GeoCoder.Provider)
		}
	})
	t.Run("locale is taken from LC_MESSAGES", func(t *testing.T) {
		t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Locale != "de-DE" {
			t.Errorf("expected locale to be de-DE, got %s", conf.Locale)
		}
	})
	invalid := []struct {
		name  string
		key   string
		value string
	}{
		{"log level", "PLACE_LOGLEVEL", "invalid"},
		{"locate timeout", "PLACE_LOCATE_TIMEOUT", "-1s"},
		{"desired accuracy", "PLACE_LOCATE_DESIRED_ACCURACY", "-5"},
		{"geocoder provider", "PLACE_GEOCODER_PROVIDER", "google"},
		{"geocoder timeout", "PLACE_GEOCODER_TIMEOUT", "0s"},
		{"cache backend", "PLACE_GEOCODER_CACHE_BACKEND", "memcached"},
		{"cache ttl", "PLACE_GEOCODER_CACHE_TTL_MISS", "-1h"},
		{"output interval", "PLACE_WATCH_OUTPUT_INTERVAL", "10ms"},
	}
	for _, tc := range invalid {
		t.Run("invalid "+tc.name+" fails", func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := New(); err == nil {
				t.Error("expected config to fail, but didn't")
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	t.Run("reading config from valid file succeeds", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(testConfig), 0o600); err != nil {
			t.Fatal(err)
		}
		conf, err := NewFromFile(dir, "config.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != slog.LevelDebug || conf.Locale != "de" {
			t.Errorf("unexpected log level or locale: %s/%s", conf.LogLevel, conf.Locale)
		}
		if conf.Locate.Timeout != time.Second*20 || conf.Locate.DesiredAccuracy != 100 || !conf.Locate.Placemark {
			t.Errorf("unexpected locate section: %+v", conf.Locate)
		}
		if !conf.GeoLocation.DisableGeoIP || !conf.GeoLocation.RequireAgent || len(conf.GeoLocation.Agents) != 2 {
			t.Errorf("unexpected geolocation section: %+v", conf.GeoLocation)
		}
		if conf.GeoCoder.Provider != "opencage" || conf.GeoCoder.APIKey != "secret" {
			t.Errorf("unexpected geocoder section: %s/%s", conf.GeoCoder.Provider, conf.GeoCoder.APIKey)
		}
		if conf.GeoCoder.Cache.Backend != "redis" || conf.GeoCoder.Cache.RedisAddr != "redis:6379" ||
			conf.GeoCoder.Cache.RedisDB != 2 {
			t.Errorf("unexpected cache section: %+v", conf.GeoCoder.Cache)
		}
	})
	t.Run("reading config from non-existent file fails", func(t *testing.T) {
		if _, err := NewFromFile(t.TempDir(), "non-existent.toml"); err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("reading invalid config file fails", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "invalid.toml"), []byte("[locate\ntimeout ="), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFromFile(dir, "invalid.toml"); err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}
