// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2

	// UnknownAccuracy is reported as vertical accuracy when gpsd has no 3D fix or no epv.
	UnknownAccuracy = -1
)

// ErrNoTPV is returned when the gpsd stream ended without a usable TPV report.
var ErrNoTPV = errors.New("no TPV response received from GPSd")

// Client is a minimal GPSd client
type Client struct {
	Addr string
}

// Fix represents a single GPS fix from gpsd. Alt is the altitude above mean sea level,
// AltHAE the height above the WGS84 ellipsoid.
type Fix struct {
	Lat    float64
	Lon    float64
	Alt    float64
	AltHAE float64
	Acc    float64
	VAcc   float64
	Mode   int
	Time   time.Time
}

// tpvReport matches the subset of gpsd's TPV report we care about.
type tpvReport struct {
	Class  string    `json:"class"`
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	Alt    float64   `json:"alt"`
	AltMSL float64   `json:"altMSL"`
	AltHAE float64   `json:"altHAE"`
	Mode   int       `json:"mode"`
	Epx    float64   `json:"epx"`
	Epy    float64   `json:"epy"`
	Eph    float64   `json:"eph"`
	Epv    float64   `json:"epv"`
	Time   time.Time `json:"time"`
}

// New constructs a new Client for the given host and port.
func New(host, port string) *Client {
	return &Client{
		Addr: net.JoinHostPort(host, port),
	}
}

// Poll connects to gpsd, enables the WATCH stream and returns the first TPV report,
// regardless of its fix mode. The connection is closed before returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	return c.scan(ctx, func(Fix) bool { return true })
}

// PollFix works like Poll but skips TPV reports until one with at least a 2D fix arrives.
// Without a deadline on ctx it gives up after a short safety timeout.
func (c *Client) PollFix(ctx context.Context) (Fix, error) {
	return c.scan(ctx, Fix.Has2DFix)
}

func (c *Client) scan(ctx context.Context, accept func(Fix) bool) (Fix, error) {
	var zero Fix

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return zero, fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return zero, fmt.Errorf("gpspoll: write WATCH: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err = ctx.Err(); err != nil {
			return zero, err
		}

		var resp tpvReport
		if err = json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Class != "TPV" {
			continue
		}

		fix := resp.fix()
		if accept(fix) {
			return fix, nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if err = scanner.Err(); err != nil {
		return zero, fmt.Errorf("failed to scan GPSd response: %w", err)
	}

	return zero, ErrNoTPV
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= 2
}

func (r tpvReport) fix() Fix {
	alt := r.AltMSL
	if alt == 0 {
		alt = r.Alt
	}
	vacc := float64(UnknownAccuracy)
	if r.Mode >= 3 && r.Epv > 0 {
		vacc = r.Epv
	}
	return Fix{
		Lat:    r.Lat,
		Lon:    r.Lon,
		Alt:    alt,
		AltHAE: r.AltHAE,
		Acc:    horizontalAccuracyMeters(r),
		VAcc:   vacc,
		Mode:   r.Mode,
		Time:   r.Time,
	}
}

func horizontalAccuracyMeters(tpv tpvReport) float64 {
	switch {
	case tpv.Eph > 0:
		return tpv.Eph
	case tpv.Epx > 0 && tpv.Epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(tpv.Epx, tpv.Epy)
	default:
		return horizontalAccuracyFallback(tpv.Mode)
	}
}

func horizontalAccuracyFallback(mode int) float64 {
	switch mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
