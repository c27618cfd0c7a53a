// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location answers the question "where is this device" in a single blocking call,
// bounded by a timeout and optionally enriched with a reverse geocoded placemark.
package location

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/geocode"
	"github.com/wneessen/place/internal/logger"
)

const (
	DefaultTimeout        = time.Second * 10
	DefaultGeocodeTimeout = time.Second * 5

	// UnknownAccuracy marks an accuracy that could not be determined. Altitudes are only
	// meaningful with a VerticalAccuracy of zero or more.
	UnknownAccuracy = geobus.UnknownAccuracy

	lookupKey = "current"
)

// Location is a single position fix of the device.
type Location struct {
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	Altitude            float64   `json:"altitude"`
	EllipsoidalAltitude float64   `json:"ellipsoidal_altitude"`
	HorizontalAccuracy  float64   `json:"horizontal_accuracy"`
	VerticalAccuracy    float64   `json:"vertical_accuracy"`
	Timestamp           time.Time `json:"timestamp"`
	Source              string    `json:"source,omitempty"`

	HasPlacemark bool       `json:"has_placemark"`
	Placemark    *Placemark `json:"placemark,omitempty"`
}

// Options controls a single CurrentLocation call.
type Options struct {
	// WithPlacemark requests a reverse geocoded placemark.
	WithPlacemark bool
	// Timeout bounds the wait for a fix. Zero or negative values select the default.
	Timeout time.Duration
	// DesiredAccuracy makes the call wait for a fix at least this accurate, in meters. The
	// most accurate fix seen is used when the timeout hits first.
	DesiredAccuracy float64
}

// Authorizer decides whether location services may be used. It returns an error wrapping
// geobus.ErrAccessDenied or geobus.ErrServiceDisabled when they may not.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context) error

func (f AuthorizerFunc) Authorize(ctx context.Context) error {
	return f(ctx)
}

// AllowAll authorizes every request.
var AllowAll = AuthorizerFunc(func(context.Context) error { return nil })

// Finder produces a single fix. It is satisfied by *geobus.Orchestrator.
type Finder interface {
	Locate(ctx context.Context, key string, desiredAccuracy float64) (geobus.Result, error)
}

// Recorder receives the outcome of queries and geocoding attempts.
type Recorder interface {
	QueryFinished(status, source string, elapsed time.Duration)
	GeocodeFinished(result string)
}

type nopRecorder struct{}

func (nopRecorder) QueryFinished(string, string, time.Duration) {}
func (nopRecorder) GeocodeFinished(string)                      {}

// Locator combines authorization, fix acquisition and reverse geocoding. It is safe for
// concurrent use.
type Locator struct {
	finder         Finder
	authorizer     Authorizer
	geocoder       geocode.Geocoder
	recorder       Recorder
	logger         *logger.Logger
	timeout        time.Duration
	geocodeTimeout time.Duration
}

type Option func(*Locator)

func WithAuthorizer(a Authorizer) Option {
	return func(l *Locator) {
		if a != nil {
			l.authorizer = a
		}
	}
}

func WithGeocoder(g geocode.Geocoder) Option {
	return func(l *Locator) {
		l.geocoder = g
	}
}

func WithRecorder(r Recorder) Option {
	return func(l *Locator) {
		if r != nil {
			l.recorder = r
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(l *Locator) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithTimeout sets the timeout used when a call does not specify one.
func WithTimeout(d time.Duration) Option {
	return func(l *Locator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithGeocodeTimeout(d time.Duration) Option {
	return func(l *Locator) {
		if d > 0 {
			l.geocodeTimeout = d
		}
	}
}

func New(finder Finder, opts ...Option) *Locator {
	l := &Locator{
		finder:         finder,
		authorizer:     AllowAll,
		recorder:       nopRecorder{},
		logger:         logger.NewLogger(slog.LevelError, io.Discard),
		timeout:        DefaultTimeout,
		geocodeTimeout: DefaultGeocodeTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CurrentLocation returns the current location of the device. The returned error is nil or
// a Status. Failing to geocode never fails the call, the Location then has no placemark.
func (l *Locator) CurrentLocation(ctx context.Context, opts Options) (loc *Location, err error) {
	start := time.Now()
	source := ""
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("location query panicked", slog.Any("panic", r))
			loc, err = nil, StatusServiceError
		}
		l.recorder.QueryFinished(StatusOf(err).String(), source, time.Since(start))
	}()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}
	fixCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err = l.authorizer.Authorize(fixCtx); err != nil {
		status := l.failure(fixCtx, err)
		l.logger.Debug("location query not authorized", slog.String("status", status.String()), logger.Err(err))
		return nil, status
	}

	res, err := l.finder.Locate(fixCtx, lookupKey, opts.DesiredAccuracy)
	if err != nil {
		status := l.failure(fixCtx, err)
		l.logger.Debug("no location fix", slog.String("status", status.String()), logger.Err(err))
		return nil, status
	}
	if !res.Coordinate().Valid() {
		l.logger.Debug("discarding invalid location fix", slog.String("source", res.Source))
		return nil, StatusServiceError
	}
	source = res.Source

	loc = newLocation(res)
	if opts.WithPlacemark {
		l.attachPlacemark(ctx, loc)
	}
	return loc, nil
}

// Describe turns a fix obtained elsewhere, for example from a GeoBus subscription, into a
// Location and attaches a placemark when requested.
func (l *Locator) Describe(ctx context.Context, res geobus.Result, withPlacemark bool) *Location {
	loc := newLocation(res)
	if withPlacemark {
		l.attachPlacemark(ctx, loc)
	}
	return loc
}

// failure turns an error into a Status. An expired or cancelled context always means no fix
// arrived in time.
func (l *Locator) failure(ctx context.Context, err error) Status {
	if ctx.Err() != nil {
		return StatusTimeout
	}
	return failureStatus(err)
}

// attachPlacemark reverse geocodes loc within its own timeout.
func (l *Locator) attachPlacemark(ctx context.Context, loc *Location) {
	if l.geocoder == nil {
		l.recorder.GeocodeFinished("unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, l.geocodeTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			l.recorder.GeocodeFinished("error")
			l.logger.Error("geocoder panicked", slog.String("geocoder", l.geocoder.Name()), slog.Any("panic", r))
		}
	}()

	addr, err := l.geocoder.Reverse(ctx, geobus.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude,
		Acc: loc.HorizontalAccuracy})
	if err != nil {
		l.recorder.GeocodeFinished("error")
		l.logger.Warn("failed to reverse geocode location", slog.String("geocoder", l.geocoder.Name()),
			logger.Err(err))
		return
	}
	if !addr.AddressFound {
		l.recorder.GeocodeFinished("not_found")
		l.logger.Debug("no address found for location", slog.String("geocoder", l.geocoder.Name()))
		return
	}

	l.recorder.GeocodeFinished("ok")
	loc.Placemark = NewPlacemark(addr)
	loc.HasPlacemark = true
}

func newLocation(res geobus.Result) *Location {
	loc := &Location{
		Latitude:           res.Lat,
		Longitude:          res.Lon,
		HorizontalAccuracy: res.AccuracyMeters,
		VerticalAccuracy:   res.VerticalAccuracyMeters,
		Timestamp:          res.At.Truncate(time.Second),
		Source:             res.Source,
	}
	// AccuracyUnknown only ranks fixes inside the bus and never leaves the facade.
	if loc.HorizontalAccuracy <= 0 || loc.HorizontalAccuracy >= geobus.AccuracyUnknown {
		loc.HorizontalAccuracy = UnknownAccuracy
	}
	if loc.VerticalAccuracy < 0 {
		loc.VerticalAccuracy = UnknownAccuracy
	} else {
		loc.Altitude = res.Alt
		loc.EllipsoidalAltitude = res.AltEllipsoidal
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().Truncate(time.Second)
	}
	return loc
}

// String returns a one-line description of the location.
func (l *Location) String() string {
	return fmt.Sprintf("%.6f,%.6f ±%.0fm", l.Latitude, l.Longitude, l.HorizontalAccuracy)
}
