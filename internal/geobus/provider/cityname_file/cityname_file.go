// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package cityname_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
)

const (
	name     = "cityname_file"
	ttlTime  = time.Hour * 12
	pollTime = time.Minute * 5
)

var (
	ErrNoCoordinates   = errors.New("no valid city name found in cityname file")
	ErrGeocoderMissing = errors.New("geocoder is required")
)

// CitynameFileProvider resolves the first city name in a file through forward geocoding.
type CitynameFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	coder    geocode.Geocoder
	locateFn func(ctx context.Context) (geobus.Coordinate, error)
}

func NewCitynameFileProvider(path string, coder geocode.Geocoder) (*CitynameFileProvider, error) {
	if coder == nil {
		return nil, ErrGeocoderMissing
	}
	provider := &CitynameFileProvider{
		coder:  coder,
		name:   name,
		path:   path,
		period: pollTime,
		ttl:    ttlTime,
	}
	provider.locateFn = provider.readFile
	return provider, nil
}

func (p *CitynameFileProvider) Name() string {
	return p.name
}

func (p *CitynameFileProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	coords, err := p.locateFn(ctx)
	if err != nil {
		return geobus.Result{}, err
	}
	return p.createResult(key, coords), nil
}

// LookupStream re-resolves the city name periodically and emits a result whenever it moved.
func (p *CitynameFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.period, p.Locate)
}

func (p *CitynameFileProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:                    key,
		Lat:                    coord.Lat,
		Lon:                    coord.Lon,
		AccuracyMeters:         geobus.AccuracyCity,
		VerticalAccuracyMeters: geobus.UnknownAccuracy,
		Source:                 p.name,
		At:                     time.Now(),
		TTL:                    p.ttl,
	}
}

// readFile returns the coordinates of the first city name in the file the geocoder can resolve.
func (p *CitynameFileProvider) readFile(ctx context.Context) (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read cityname file %q: %w", p.path, err)
	}

	var errs []error
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		coords, err := p.coder.Search(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return geobus.Coordinate{}, err
			}
			errs = append(errs, err)
			continue
		}
		if !coords.Found || !coords.Valid() {
			continue
		}
		return coords, nil
	}
	if len(errs) > 0 {
		return geobus.Coordinate{}, fmt.Errorf("%w: %w", ErrNoCoordinates, errors.Join(errs...))
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}
