// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/place/internal/geobus"
	"github.com/wneessen/place/internal/http"
	"github.com/wneessen/place/internal/logger"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	name          = "ichnaea"
)

var ErrHTTPClientRequired = errors.New("http client is required")

type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     *wifi.Client
	logger   *logger.Logger
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (lat, lon, acc float64, err error)

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// NewGeolocationICHNAEAProvider returns a provider for the BeaconDB geolocate API. Without
// nl80211 support the provider falls back to IP based lookups.
func NewGeolocationICHNAEAProvider(http *http.Client, log *logger.Logger) (*GeolocationICHNAEAProvider, error) {
	if http == nil {
		return nil, ErrHTTPClientRequired
	}

	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     http,
		logger:   log,
		period:   time.Minute * 5,
		ttl:      time.Hour * 1,
	}
	wlan, err := wifi.New()
	if err != nil {
		log.Debug("wifi scanning unavailable, using IP based lookups only", logger.Err(err))
	} else {
		provider.wlan = wlan
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// Locate performs a single lookup. If no access points were collected yet, a Wi-Fi scan is
// run first.
func (p *GeolocationICHNAEAProvider) Locate(ctx context.Context, key string) (geobus.Result, error) {
	p.apLock.RLock()
	haveAPs := len(p.aps) > 0
	p.apLock.RUnlock()
	if !haveAPs {
		p.refreshAccessPoints()
	}

	lat, lon, acc, err := p.locateFn(ctx)
	if err != nil {
		return geobus.Result{}, err
	}
	return p.createResult(key, geobus.Coordinate{Lat: lat, Lon: lon, Acc: acc}), nil
}

// LookupStream periodically queries the API and emits a result whenever the position changed
// significantly. Wi-Fi access points are rescanned in the background.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	go p.monitorWifiAccessPoints(ctx)
	return geobus.PollStream(ctx, key, p.period, func(ctx context.Context, key string) (geobus.Result, error) {
		lat, lon, acc, err := p.locateFn(ctx)
		if err != nil {
			p.logger.Debug("ichnaea lookup failed", logger.Err(err))
			return geobus.Result{}, err
		}
		return p.createResult(key, geobus.Coordinate{Lat: lat, Lon: lon, Acc: acc}), nil
	})
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationICHNAEAProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

func (p *GeolocationICHNAEAProvider) monitorWifiAccessPoints(ctx context.Context) {
	if p.wlan == nil {
		return
	}
	firstRun := true
	for {
		if !firstRun {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wifiScanTime):
			}
		}
		firstRun = false
		p.refreshAccessPoints()
	}
}

func (p *GeolocationICHNAEAProvider) refreshAccessPoints() {
	if p.wlan == nil {
		return
	}
	list, err := p.wifiAccessPoints()
	if err != nil {
		p.logger.Debug("failed to scan wifi access points", logger.Err(err))
		return
	}
	p.apLock.Lock()
	p.aps = list
	p.apLock.Unlock()
}

func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}
	if len(checkIfaces) == 0 {
		return nil, nil
	}

	for _, iface := range checkIfaces {
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if !usableSSID(ap.SSID) {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

// usableSSID filters hidden networks and networks that opted out of location services.
func usableSSID(ssid string) bool {
	return ssid != "" && ssid[0] != '\x00' && !strings.HasSuffix(ssid, "_nomap")
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (lat, lon, acc float64, err error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err = json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	code, err := p.http.PostWithTimeout(ctx, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if code != stdhttp.StatusOK {
		return 0, 0, 0, fmt.Errorf("%w: API responded with status %d", geobus.ErrNoFix, code)
	}

	return geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		geobus.Truncate(result.Accuracy, geobus.TruncPrecision), nil
}
