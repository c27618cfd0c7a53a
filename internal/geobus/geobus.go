// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/place/internal/logger"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4

	// UnknownAccuracy marks an accuracy value the source could not provide.
	UnknownAccuracy = -1
)

var (
	ErrAccessDenied    = errors.New("access to location services denied")
	ErrServiceDisabled = errors.New("location services are disabled")
	ErrNoFix           = errors.New("no position fix available")
	ErrNoProviders     = errors.New("no geolocation providers configured")
	ErrInvalidFix      = errors.New("provider returned invalid coordinates")
)

// Provider defines an interface for geolocation service providers. Locate returns a single
// fix, LookupStream keeps emitting fixes until the context is done.
type Provider interface {
	Name() string
	Locate(ctx context.Context, key string) (Result, error)
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus coordinates the publishing and subscribing of geolocation results between providers and consumers.
type GeoBus struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	logger      *logger.Logger
	best        map[string]Result
	subscribers map[string]map[chan Result]struct{}
	globalSubs  map[chan Result]struct{}
}

// Result represents a geolocation result with associated metadata. Altitudes are only
// meaningful when VerticalAccuracyMeters is not negative.
type Result struct {
	Key                    string
	Lat, Lon               float64
	Alt                    float64
	AltEllipsoidal         float64
	AccuracyMeters         float64
	VerticalAccuracyMeters float64
	Source                 string
	At                     time.Time
	TTL                    time.Duration
}

// Coordinate returns the position of the Result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters}
}

// BetterThan compares two Result objects to determine if the current instance is better than the provided one.
// A newer result with a clearly smaller accuracy radius wins, older results never do.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// ExpiredAt checks if the Result has exceeded its time-to-live (TTL) at the given time.
func (r Result) ExpiredAt(now time.Time) bool {
	return r.TTL > 0 && now.Sub(r.At) > r.TTL
}

// New initializes and returns a new instance of GeoBus to handle geolocation result coordination.
func New(logger *logger.Logger) *GeoBus {
	return NewWithClock(logger, clockwork.NewRealClock())
}

// NewWithClock returns a GeoBus that uses the given clock for timestamps and TTL checks.
func NewWithClock(logger *logger.Logger, clock clockwork.Clock) *GeoBus {
	return &GeoBus{
		clock:       clock,
		logger:      logger,
		best:        make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
		globalSubs:  make(map[chan Result]struct{}),
	}
}

func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
		logger:    b.logger,
	}
}

// Subscribe adds a subscriber for updates associated with the given key and buffer size, returning a result
// channel and an unsubscribe function.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	resultChan := make(chan Result, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}

	b.subscribers[key][resultChan] = struct{}{}
	if best, ok := b.best[key]; ok && !best.ExpiredAt(b.clock.Now()) && size > 0 {
		resultChan <- best
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, resultChan)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(resultChan)
		})
	}

	return resultChan, unsub
}

// SubscribeAll subscribes to the updates of every key.
func (b *GeoBus) SubscribeAll(size int) (<-chan Result, func()) {
	ch := make(chan Result, size)
	b.mu.Lock()
	b.globalSubs[ch] = struct{}{}
	now := b.clock.Now()
	for _, v := range b.best {
		if len(ch) < cap(ch) && !v.ExpiredAt(now) {
			ch <- v
		}
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.globalSubs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish stores r as the best result for its key and broadcasts it to the subscribers if it
// is the first result, the previous one expired, or it is better and moved significantly.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters <= 0 {
		return
	}
	if !r.Coordinate().Valid() {
		return
	}
	now := b.clock.Now()
	if r.At.IsZero() {
		r.At = now
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, have := b.best[r.Key]
	if !have || prev.ExpiredAt(now) || r.BetterThan(prev) && r.Coordinate().PosHasSignificantChange(prev.Coordinate()) {
		b.best[r.Key] = r
		b.broadcastResult(r)
		return
	}

	// Refresh the TTL if the source has not changed
	if prev.Source == r.Source {
		prev.At = r.At
		b.best[r.Key] = prev
	}
}

func (b *GeoBus) broadcastResult(r Result) {
	if subs, ok := b.subscribers[r.Key]; ok {
		for ch := range subs {
			select {
			case ch <- r:
			default:
			}
		}
	}
	for ch := range b.globalSubs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Best returns the current best, non-expired result for the key.
func (b *GeoBus) Best(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.best[key]
	return r, ok && !r.ExpiredAt(b.clock.Now())
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
