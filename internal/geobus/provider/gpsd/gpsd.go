// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/gpspoll"
	"github.com/wneessen/place/internal/logger"
)

const (
	name        = "gpsd"
	DefaultAddr = "localhost:2947"
)

type GeolocationGPSDProvider struct {
	name     string
	addr     string
	period   time.Duration
	ttl      time.Duration
	logger   *logger.Logger
	locateFn func(context.Context) (gpspoll.Fix, error)
}

// NewGeolocationGPSDProvider returns a provider for the gpsd daemon listening on addr. An
// empty addr selects DefaultAddr.
func NewGeolocationGPSDProvider(addr string, log *logger.Logger) (*GeolocationGPSDProvider, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid gpsd address %q: %w", addr, err)
	}
	client := gpspoll.New(host, port)
	return &GeolocationGPSDProvider{
		name:     name,
		addr:     client.Addr,
		period:   time.Second * 30,
		ttl:      time.Minute * 2,
		logger:   log,
		locateFn: client.PollFix,
	}, nil
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// Locate waits for the first TPV report with at least a 2D fix.
func (p *GeolocationGPSDProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	fix, err := p.locateFn(ctx)
	if err != nil {
		return geobus.Result{}, fmt.Errorf("failed to poll gpsd for a fix: %w", err)
	}
	if !fix.Has2DFix() {
		return geobus.Result{}, geobus.ErrNoFix
	}
	return p.resultFromFix(key, fix), nil
}

// LookupStream watches the gpsd TPV stream and emits every significant position change.
// Lost connections are retried after the provider period.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			session, err := gpsd.Dial(p.addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", "addr", p.addr, logger.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
					continue
				}
			}

			if !p.forwardSession(ctx, session, key, &state, out) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// forwardSession relays the TPV reports of one gpsd session to out until the session ends.
// It returns false once ctx is done. go-gpsd has no Close() and its watch goroutine may
// outlive the session, so the filter only sends to the never-closed reports channel and gives
// up once stop is closed.
func (p *GeolocationGPSDProvider) forwardSession(ctx context.Context, session *gpsd.Session, key string,
	state *geobus.GeolocationState, out chan<- geobus.Result,
) bool {
	reports := make(chan geobus.Result)
	stop := make(chan struct{})
	defer close(stop)

	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok || tpv.Mode < gpsd.Mode2D {
			return
		}
		select {
		case <-ctx.Done():
		case <-stop:
		case reports <- p.resultFromTPV(key, tpv):
		}
	})

	done := session.Watch()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return true
		case res := <-reports:
			if !state.HasChanged(res.Coordinate()) {
				continue
			}
			state.Update(res.Coordinate())
			select {
			case <-ctx.Done():
				return false
			case out <- res:
			}
		}
	}
}

func (p *GeolocationGPSDProvider) resultFromFix(key string, fix gpspoll.Fix) geobus.Result {
	res := p.createResult(key, geobus.Coordinate{
		Lat: fix.Lat,
		Lon: fix.Lon,
		Acc: fix.Acc,
	})
	res.Alt = fix.Alt
	res.AltEllipsoidal = fix.AltHAE
	res.VerticalAccuracyMeters = fix.VAcc
	if !fix.Time.IsZero() {
		res.At = fix.Time
	}
	return res
}

// resultFromTPV converts a streamed TPV report. The stream reports carry no ellipsoidal
// height, so vertical data is only kept for the MSL altitude of a 3D fix.
func (p *GeolocationGPSDProvider) resultFromTPV(key string, tpv *gpsd.TPVReport) geobus.Result {
	acc := math.Hypot(tpv.Epx, tpv.Epy)
	if acc <= 0 {
		acc = geobus.AccuracyUnknown
	}
	res := p.createResult(key, geobus.Coordinate{
		Lat: tpv.Lat,
		Lon: tpv.Lon,
		Acc: acc,
	})
	if tpv.Mode == gpsd.Mode3D && tpv.Epv > 0 {
		res.Alt = tpv.Alt
		res.VerticalAccuracyMeters = tpv.Epv
	}
	if !tpv.Time.IsZero() {
		res.At = tpv.Time
	}
	return res
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGPSDProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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
