// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/logger"
)

// coordPrecision is the precision used to quantize coordinates (0.01 degrees ≈ 1.1 km)
const coordPrecision = 1e-2

// DefaultFlightTimeout bounds an upstream lookup shared by concurrent callers.
const DefaultFlightTimeout = time.Second * 10

const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// CacheRecorder is notified about every cache lookup with CacheHit or CacheMiss.
type CacheRecorder interface {
	CacheResult(result string)
}

// CacheOption configures a CachedGeocoder.
type CacheOption func(*CachedGeocoder)

// WithStore replaces the default in-memory store.
func WithStore(store Store) CacheOption {
	return func(c *CachedGeocoder) {
		c.store = store
	}
}

// WithRecorder registers a recorder for cache hits and misses.
func WithRecorder(recorder CacheRecorder) CacheOption {
	return func(c *CachedGeocoder) {
		c.recorder = recorder
	}
}

// WithFlightTimeout sets the time a shared upstream lookup may take.
func WithFlightTimeout(timeout time.Duration) CacheOption {
	return func(c *CachedGeocoder) {
		if timeout > 0 {
			c.flightTimeout = timeout
		}
	}
}

// WithLogger sets the logger used to report store failures.
func WithLogger(log *logger.Logger) CacheOption {
	return func(c *CachedGeocoder) {
		c.logger = log
	}
}

// CachedGeocoder wraps a Geocoder with a cache. Reverse lookups are keyed by the coordinate
// quantized to coordPrecision, so nearby positions share an entry. Concurrent lookups for the
// same key are collapsed into one upstream request, which runs detached from the callers'
// contexts and is bounded by the flight timeout. Failed lookups are not cached and store
// failures only degrade the cache, they never fail a lookup.
type CachedGeocoder struct {
	coder         Geocoder
	store         Store
	ttlHit        time.Duration
	ttlMiss       time.Duration
	flightTimeout time.Duration
	recorder      CacheRecorder
	logger        *logger.Logger
	group         singleflight.Group
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration, opts ...CacheOption) *CachedGeocoder {
	c := &CachedGeocoder{
		coder:         coder,
		ttlHit:        ttlHit,
		ttlMiss:       ttlMiss,
		flightTimeout: DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore(clockwork.NewRealClock())
	}
	return c
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error) {
	key := reverseKey(c.coder.Name(), coords.Lat, coords.Lon)

	var addr Address
	if c.lookup(ctx, key, &addr) {
		addr.CacheHit = true
		return addr, nil
	}

	value, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		found, err := c.coder.Reverse(ctx, coords)
		if err != nil {
			return Address{}, err
		}
		ttl := c.ttlHit
		if !found.AddressFound {
			ttl = c.ttlMiss
		}
		c.save(ctx, key, found, ttl)
		return found, nil
	})
	if err != nil {
		return Address{}, err
	}

	// Callers sharing a flight must not share the slices of the result.
	return value.(Address).Clone(), nil
}

func (c *CachedGeocoder) Search(ctx context.Context, address string) (geobus.Coordinate, error) {
	key := searchKey(c.coder.Name(), address)

	var coords geobus.Coordinate
	if c.lookup(ctx, key, &coords) {
		coords.CacheHit = true
		return coords, nil
	}

	value, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		found, err := c.coder.Search(ctx, address)
		if err != nil {
			return geobus.Coordinate{}, err
		}
		ttl := c.ttlHit
		if !found.Found {
			ttl = c.ttlMiss
		}
		c.save(ctx, key, found, ttl)
		return found, nil
	})
	if err != nil {
		return geobus.Coordinate{}, err
	}
	return value.(geobus.Coordinate), nil
}

// share runs fn once for all concurrent callers of key. The flight gets its own context, so a
// caller that gives up does not fail the others; each caller still returns on its own ctx.
func (c *CachedGeocoder) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	flight := c.group.DoChan(key, func() (value any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("geocoder %s panicked: %v", c.coder.Name(), r)
			}
		}()
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		return res.Val, res.Err
	}
}

// lookup decodes the cached value for key into target and reports whether it was found.
func (c *CachedGeocoder) lookup(ctx context.Context, key string, target any) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.warn("failed to read from geocoder cache", key, err)
	}
	if ok && err == nil {
		if err = json.Unmarshal(data, target); err == nil {
			c.record(CacheHit)
			return true
		}
		c.warn("failed to decode geocoder cache entry", key, err)
	}
	c.record(CacheMiss)
	return false
}

func (c *CachedGeocoder) save(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.warn("failed to encode geocoder cache entry", key, err)
		return
	}
	if err = c.store.Set(ctx, key, data, ttl); err != nil {
		c.warn("failed to write to geocoder cache", key, err)
	}
}

func (c *CachedGeocoder) record(result string) {
	if c.recorder != nil {
		c.recorder.CacheResult(result)
	}
}

func (c *CachedGeocoder) warn(msg, key string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, "key", key, logger.Err(err))
	}
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func reverseKey(provider string, lat, lon float64) string {
	return fmt.Sprintf("%s:rev:%d:%d", provider, quantizeCoord(lat), quantizeCoord(lon))
}

func searchKey(provider, address string) string {
	return fmt.Sprintf("%s:fwd:%s", provider, strings.ToLower(strings.TrimSpace(address)))
}
