// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/place/internal/geobus"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a static position from a file. Each non-comment line has the
// form "lat,lon" or "lat,lon,accuracy"; the first valid line wins. Without an accuracy column
// the position is assumed to be exact to the postal code.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() (geobus.Coordinate, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider with a file path and default update
// interval and TTL settings.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour * 1,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

func (p *GeolocationFileProvider) Locate(_ context.Context, key string) (geobus.Result, error) {
	coord, err := p.locateFn()
	if err != nil {
		return geobus.Result{}, err
	}
	return p.createResult(key, coord), nil
}

// LookupStream re-reads the file periodically and emits a result whenever the position changed.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.period, p.Locate)
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationFileProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:                    key,
		Lat:                    coord.Lat,
		Lon:                    coord.Lon,
		AccuracyMeters:         coord.Acc,
		VerticalAccuracyMeters: geobus.UnknownAccuracy,
		Source:                 p.name,
		At:                     time.Now(),
		TTL:                    p.ttl,
	}
}

// readFile reads geolocation data from the file at the configured path.
func (p *GeolocationFileProvider) readFile() (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if coord, ok := parseLine(line); ok {
			return coord, nil
		}
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}

func parseLine(line string) (geobus.Coordinate, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 || len(fields) > 3 {
		return geobus.Coordinate{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return geobus.Coordinate{}, false
		}
		values[i] = v
	}

	coord := geobus.Coordinate{Lat: values[0], Lon: values[1], Acc: geobus.AccuracyZip}
	if len(values) == 3 && values[2] > 0 {
		coord.Acc = values[2]
	}
	return coord, coord.Valid()
}
