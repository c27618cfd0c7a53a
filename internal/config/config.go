// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "PLACE"
	AppName   = "place"
)

var (
	GeocoderProviders = []string{"nominatim", "opencage", "geocode-earth", "none"}
	CacheBackends     = []string{"memory", "redis", "none"}
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Locate struct {
		Timeout time.Duration `fig:"timeout" default:"10s"`
		// In meters, 0 accepts the first fix
		DesiredAccuracy float64 `fig:"desired_accuracy"`
		Placemark       bool    `fig:"placemark"`
		DesktopID       string  `fig:"desktop_id" default:"place"`
	} `fig:"locate"`

	GeoLocation struct {
		File                   string   `fig:"file"`
		CitynameFile           string   `fig:"cityname_file"`
		GPSDAddress            string   `fig:"gpsd_address" default:"localhost:2947"`
		DisableGeoClue         bool     `fig:"disable_geoclue"`
		DisableGPSD            bool     `fig:"disable_gpsd"`
		DisableGeoIP           bool     `fig:"disable_geoip"`
		DisableGeoAPI          bool     `fig:"disable_geoapi"`
		DisableICHNAEA         bool     `fig:"disable_ichnaea"`
		DisableGeolocationFile bool     `fig:"disable_geolocation_file"`
		DisableCitynameFile    bool     `fig:"disable_cityname_file"`
		RequireAgent           bool     `fig:"require_agent"`
		Agents                 []string `fig:"agents"`
	} `fig:"geolocation"`

	GeoCoder struct {
		// Allowed values: nominatim, opencage, geocode-earth, none
		Provider string        `fig:"provider" default:"nominatim"`
		APIKey   string        `fig:"apikey"`
		Timeout  time.Duration `fig:"timeout" default:"5s"`

		Cache struct {
			// Allowed values: memory, redis, none
			Backend       string        `fig:"backend" default:"memory"`
			TTLHit        time.Duration `fig:"ttl_hit" default:"24h"`
			TTLMiss       time.Duration `fig:"ttl_miss" default:"1h"`
			RedisAddr     string        `fig:"redis_addr" default:"localhost:6379"`
			RedisPassword string        `fig:"redis_password"`
			RedisDB       int           `fig:"redis_db"`
		} `fig:"cache"`
	} `fig:"geocoder"`

	Watch struct {
		OutputInterval time.Duration `fig:"output_interval" default:"30s"`
		MetricsAddr    string        `fig:"metrics_addr"`
	} `fig:"watch"`

	Templates struct {
		// Renders the location with text/template instead of the built-in output
		Text string `fig:"text"`
	} `fig:"templates"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// Validate checks the values of the Config and fills in defaults that depend on the
// environment.
func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Locate.Timeout <= 0 {
		return fmt.Errorf("invalid locate timeout: %s", c.Locate.Timeout)
	}
	if c.Locate.DesiredAccuracy < 0 {
		return fmt.Errorf("invalid desired accuracy: %f", c.Locate.DesiredAccuracy)
	}
	if c.Locate.DesktopID == "" {
		c.Locate.DesktopID = AppName
	}

	c.GeoCoder.Provider = strings.ToLower(c.GeoCoder.Provider)
	if !slices.Contains(GeocoderProviders, c.GeoCoder.Provider) {
		return fmt.Errorf("unsupported geocoder provider: %s", c.GeoCoder.Provider)
	}
	if c.GeoCoder.Timeout <= 0 {
		return fmt.Errorf("invalid geocoder timeout: %s", c.GeoCoder.Timeout)
	}
	c.GeoCoder.Cache.Backend = strings.ToLower(c.GeoCoder.Cache.Backend)
	if !slices.Contains(CacheBackends, c.GeoCoder.Cache.Backend) {
		return fmt.Errorf("unsupported geocoder cache backend: %s", c.GeoCoder.Cache.Backend)
	}
	if c.GeoCoder.Cache.TTLHit <= 0 || c.GeoCoder.Cache.TTLMiss <= 0 {
		return fmt.Errorf("invalid geocoder cache TTLs: %s/%s", c.GeoCoder.Cache.TTLHit, c.GeoCoder.Cache.TTLMiss)
	}

	if c.Watch.OutputInterval < time.Second {
		return fmt.Errorf("invalid output interval: %s", c.Watch.OutputInterval)
	}

	home, _ := os.UserHomeDir()
	if c.GeoLocation.File == "" {
		c.GeoLocation.File = filepath.Join(home, ".config", AppName, "geolocation")
	}
	if c.GeoLocation.CitynameFile == "" {
		c.GeoLocation.CitynameFile = filepath.Join(home, ".config", AppName, "cityname")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
