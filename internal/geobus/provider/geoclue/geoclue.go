// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/logger"
)

const (
	name = "geoclue"

	BusName           = "org.freedesktop.GeoClue2"
	ManagerPath       = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerInterface  = "org.freedesktop.GeoClue2.Manager"
	clientInterface   = "org.freedesktop.GeoClue2.Client"
	locationInterface = "org.freedesktop.GeoClue2.Location"
	locationUpdated   = "LocationUpdated"

	// AccuracyLevelExact is GCLUE_ACCURACY_LEVEL_EXACT.
	AccuracyLevelExact uint32 = 8

	errNameAccessDenied   = "org.freedesktop.DBus.Error.AccessDenied"
	errNameServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	errNameNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"

	signalBufferSize = 8
	stopTimeout      = time.Second * 2
)

// object is the part of a dbus.BusObject the provider talks to.
type object interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
	SetProperty(p string, v any) error
}

// bus is the part of a system bus connection the provider needs.
type bus interface {
	object(dest string, path dbus.ObjectPath) object
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

type connBus struct {
	*dbus.Conn
}

func (c connBus) object(dest string, path dbus.ObjectPath) object {
	return c.Object(dest, path)
}

func dialSystemBus(ctx context.Context) (bus, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to system bus: %w", geobus.ErrServiceDisabled, err)
	}
	return connBus{conn}, nil
}

// GeolocationGeoClueProvider asks GeoClue2 for the position of the device. Every lookup uses
// its own D-Bus connection and GeoClue client.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	period    time.Duration
	ttl       time.Duration
	logger    *logger.Logger
	dial      func(ctx context.Context) (bus, error)
}

func NewGeolocationGeoClueProvider(desktopID string, log *logger.Logger) *GeolocationGeoClueProvider {
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		period:    time.Second * 30,
		ttl:       time.Minute * 5,
		logger:    log,
		dial:      dialSystemBus,
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// Locate starts a GeoClue client and returns the first location it reports.
func (p *GeolocationGeoClueProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	sess, err := p.start(ctx)
	if err != nil {
		return geobus.Result{}, err
	}
	defer sess.close()

	if path, ok := sess.currentLocation(); ok {
		return p.readLocation(sess.conn, key, path)
	}
	for {
		select {
		case <-ctx.Done():
			return geobus.Result{}, ctx.Err()
		case sig, ok := <-sess.signals:
			if !ok {
				return geobus.Result{}, fmt.Errorf("%w: system bus connection closed", geobus.ErrNoFix)
			}
			path, ok := sess.locationPath(sig)
			if !ok {
				continue
			}
			return p.readLocation(sess.conn, key, path)
		}
	}
}

// LookupStream emits every location GeoClue reports. Failed sessions are retried after the
// provider period.
func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			if err := p.stream(ctx, key, &state, out); err != nil {
				p.logger.Debug("geoclue session ended", logger.Err(err))
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

func (p *GeolocationGeoClueProvider) stream(ctx context.Context, key string, state *geobus.GeolocationState,
	out chan<- geobus.Result,
) error {
	sess, err := p.start(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	emit := func(path dbus.ObjectPath) {
		res, err := p.readLocation(sess.conn, key, path)
		if err != nil {
			p.logger.Debug("failed to read geoclue location", logger.Err(err))
			return
		}
		if !state.HasChanged(res.Coordinate()) {
			return
		}
		state.Update(res.Coordinate())
		select {
		case <-ctx.Done():
		case out <- res:
		}
	}

	if path, ok := sess.currentLocation(); ok {
		emit(path)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sess.signals:
			if !ok {
				return errors.New("system bus connection closed")
			}
			if path, ok := sess.locationPath(sig); ok {
				emit(path)
			}
		}
	}
}

type session struct {
	conn    bus
	client  object
	path    dbus.ObjectPath
	signals chan *dbus.Signal
	match   []dbus.MatchOption
	started bool
	logger  *logger.Logger
}

// start registers a GeoClue client and subscribes to its location updates.
func (p *GeolocationGeoClueProvider) start(ctx context.Context) (*session, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	sess := &session{conn: conn, logger: p.logger}

	if err = checkAvailable(conn); err != nil {
		sess.close()
		return nil, err
	}

	manager := conn.object(BusName, ManagerPath)
	if err = manager.CallWithContext(ctx, managerInterface+".GetClient", 0).Store(&sess.path); err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to get geoclue client: %w", classify(err))
	}
	sess.client = conn.object(BusName, sess.path)
	if err = sess.client.SetProperty(clientInterface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to set geoclue desktop id: %w", classify(err))
	}
	if err = sess.client.SetProperty(clientInterface+".RequestedAccuracyLevel",
		dbus.MakeVariant(AccuracyLevelExact)); err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to set geoclue accuracy level: %w", classify(err))
	}

	sess.match = []dbus.MatchOption{
		dbus.WithMatchObjectPath(sess.path),
		dbus.WithMatchInterface(clientInterface),
		dbus.WithMatchMember(locationUpdated),
	}
	if err = conn.AddMatchSignal(sess.match...); err != nil {
		sess.match = nil
		sess.close()
		return nil, fmt.Errorf("failed to subscribe to geoclue location updates: %w", classify(err))
	}
	sess.signals = make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sess.signals)

	if err = sess.client.CallWithContext(ctx, clientInterface+".Start", 0).Err; err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to start geoclue client: %w", classify(err))
	}
	sess.started = true

	return sess, nil
}

// currentLocation returns the location the client already knows about, if any.
func (s *session) currentLocation() (dbus.ObjectPath, bool) {
	v, err := s.client.GetProperty(clientInterface + ".Location")
	if err != nil {
		return "", false
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok || path == "/" || path == "" {
		return "", false
	}
	return path, true
}

// locationPath extracts the new location from a LocationUpdated signal of this client.
func (s *session) locationPath(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	if sig == nil || sig.Path != s.path || sig.Name != clientInterface+"."+locationUpdated {
		return "", false
	}
	if len(sig.Body) != 2 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || path == "/" {
		return "", false
	}
	return path, true
}

func (s *session) close() {
	if s.started {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := s.client.CallWithContext(ctx, clientInterface+".Stop", 0).Err; err != nil {
			s.logger.Debug("failed to stop geoclue client", logger.Err(err))
		}
		cancel()
	}
	if s.signals != nil {
		s.conn.RemoveSignal(s.signals)
	}
	if s.match != nil {
		if err := s.conn.RemoveMatchSignal(s.match...); err != nil {
			s.logger.Debug("failed to remove geoclue signal match", logger.Err(err))
		}
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("failed to close system bus connection", logger.Err(err))
	}
}

// readLocation reads a GeoClue Location object. GeoClue reports no vertical accuracy, so a
// known altitude inherits the horizontal accuracy.
func (p *GeolocationGeoClueProvider) readLocation(conn bus, key string, path dbus.ObjectPath) (geobus.Result, error) {
	loc := conn.object(BusName, path)

	var lat, lon, acc float64
	for prop, target := range map[string]*float64{"Latitude": &lat, "Longitude": &lon, "Accuracy": &acc} {
		v, err := loc.GetProperty(locationInterface + "." + prop)
		if err != nil {
			return geobus.Result{}, fmt.Errorf("failed to read geoclue location %s: %w", prop, classify(err))
		}
		if err = v.Store(target); err != nil {
			return geobus.Result{}, fmt.Errorf("failed to parse geoclue location %s: %w", prop, err)
		}
	}
	if acc <= 0 {
		acc = geobus.AccuracyUnknown
	}

	res := geobus.Result{
		Key:                    key,
		Lat:                    lat,
		Lon:                    lon,
		AccuracyMeters:         acc,
		VerticalAccuracyMeters: geobus.UnknownAccuracy,
		Source:                 p.name,
		At:                     time.Now(),
		TTL:                    p.ttl,
	}
	if !res.Coordinate().Valid() {
		return geobus.Result{}, fmt.Errorf("%w: %f/%f", geobus.ErrInvalidFix, lat, lon)
	}

	if v, err := loc.GetProperty(locationInterface + ".Altitude"); err == nil {
		var alt float64
		// unknown altitudes are reported as -DBL_MAX
		if v.Store(&alt) == nil && alt > -math.MaxFloat64 {
			res.Alt = alt
			res.VerticalAccuracyMeters = acc
		}
	}
	if v, err := loc.GetProperty(locationInterface + ".Timestamp"); err == nil {
		if ts, ok := parseTimestamp(v); ok {
			res.At = ts
		}
	}
	return res, nil
}

// parseTimestamp reads the (tt) seconds/microseconds tuple of a GeoClue location.
func parseTimestamp(v dbus.Variant) (time.Time, bool) {
	fields, ok := v.Value().([]any)
	if !ok || len(fields) != 2 {
		return time.Time{}, false
	}
	sec, ok := fields[0].(uint64)
	if !ok || sec == 0 {
		return time.Time{}, false
	}
	usec, _ := fields[1].(uint64)
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)), true
}

// checkAvailable fails when GeoClue is not running or configured to give out no location.
func checkAvailable(conn bus) error {
	v, err := conn.object(BusName, ManagerPath).GetProperty(managerInterface + ".AvailableAccuracyLevel")
	if err != nil {
		return fmt.Errorf("failed to query geoclue accuracy level: %w", classify(err))
	}
	var level uint32
	if err = v.Store(&level); err != nil {
		return fmt.Errorf("failed to parse geoclue accuracy level: %w", err)
	}
	if level == 0 {
		return fmt.Errorf("%w: geoclue accuracy level is none", geobus.ErrServiceDisabled)
	}
	return nil
}

// classify maps well-known D-Bus errors to the geobus sentinels.
func classify(err error) error {
	switch errorName(err) {
	case errNameAccessDenied:
		return fmt.Errorf("%w: %w", geobus.ErrAccessDenied, err)
	case errNameServiceUnknown, errNameNameHasNoOwner:
		return fmt.Errorf("%w: %w", geobus.ErrServiceDisabled, err)
	default:
		return err
	}
}

func errorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name
	}
	return ""
}
