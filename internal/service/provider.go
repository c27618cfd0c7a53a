// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geobus/provider/cityname_file"
	"github.com/wneessen/place/internal/geobus/provider/geoapi"
	"github.com/wneessen/place/internal/geobus/provider/geoclue"
	"github.com/wneessen/place/internal/geobus/provider/geoip"
	"github.com/wneessen/place/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/place/internal/geobus/provider/gpsd"
	"github.com/wneessen/place/internal/geobus/provider/ichnaea"
	"github.com/wneessen/place/internal/geocode"
	geocodeearth "github.com/wneessen/place/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/place/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/place/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/place/internal/i18n"
	"github.com/wneessen/place/internal/location"
	"github.com/wneessen/place/internal/logger"
)

// selectGeobusProviders returns the enabled fix sources. The cityname file needs a geocoder
// and is skipped without one.
func (s *Service) selectGeobusProviders(coder geocode.Geocoder) ([]geobus.Provider, error) {
	conf := s.config.GeoLocation
	var provider []geobus.Provider

	if !conf.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(conf.File))
	}

	if !conf.DisableCitynameFile {
		cnf, err := cityname_file.NewCitynameFileProvider(conf.CitynameFile, coder)
		if err != nil {
			s.logger.Debug("cityname file provider disabled", logger.Err(err))
		} else {
			provider = append(provider, cnf)
		}
	}

	if !conf.DisableGeoClue {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(s.config.Locate.DesktopID, s.logger))
	}

	if !conf.DisableGPSD {
		gps, err := gpsd.NewGeolocationGPSDProvider(conf.GPSDAddress, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GPSd provider: %w", err)
		}
		provider = append(provider, gps)
	}

	if !conf.DisableGeoIP {
		provider = append(provider, geoip.NewGeolocationGeoIPProvider(s.http))
	}

	if !conf.DisableGeoAPI {
		gap, err := geoapi.NewGeolocationGeoAPIProvider(s.http)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		provider = append(provider, gap)
	}

	if !conf.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(s.http, s.logger)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, geobus.ErrNoProviders
	}

	return provider, nil
}

// selectGeocodeProvider returns the configured reverse geocoder wrapped into its cache. The
// "none" provider yields a nil Geocoder.
func (s *Service) selectGeocodeProvider(ctx context.Context) (geocode.Geocoder, error) {
	conf := s.config.GeoCoder
	lang := i18n.Tag(s.config.Locale)

	var coder geocode.Geocoder
	switch conf.Provider {
	case "none":
		return nil, nil
	case "nominatim":
		coder = nominatim.New(s.http, lang)
	case "opencage":
		if conf.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder requires an API key")
		}
		coder = opencage.New(s.http, lang, conf.APIKey)
	case "geocode-earth":
		if conf.APIKey == "" {
			return nil, fmt.Errorf("geocode-earth geocoder requires an API key")
		}
		coder = geocodeearth.New(s.http, lang, conf.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Provider)
	}

	opts := []geocode.CacheOption{
		geocode.WithRecorder(s.metrics), geocode.WithLogger(s.logger),
		geocode.WithFlightTimeout(conf.Timeout),
	}
	switch conf.Cache.Backend {
	case "none":
		return coder, nil
	case "redis":
		store, err := geocode.NewRedisStore(ctx, geocode.RedisConfig{
			Addr:     conf.Cache.RedisAddr,
			Password: conf.Cache.RedisPassword,
			DB:       conf.Cache.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create geocoder cache: %w", err)
		}
		s.closers = append(s.closers, store)
		opts = append(opts, geocode.WithStore(store))
	}
	return geocode.NewCachedGeocoder(coder, conf.Cache.TTLHit, conf.Cache.TTLMiss, opts...), nil
}

// selectAuthorizer asks GeoClue for permission only if an agent is required. Otherwise each
// provider reports denials on its own.
func (s *Service) selectAuthorizer() location.Authorizer {
	conf := s.config.GeoLocation
	if !conf.RequireAgent {
		return location.AllowAll
	}
	return geoclue.NewAuthorizer(conf.RequireAgent, conf.Agents)
}
