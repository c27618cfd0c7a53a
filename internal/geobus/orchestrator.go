// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wneessen/place/internal/logger"
)

// ErrProviderPanic is returned when a provider panicked during a lookup.
var ErrProviderPanic = errors.New("provider panicked")

// Orchestrator coordinates the tracking and publication of geolocation results from multiple
// providers through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
	logger    *logger.Logger
}

type outcome struct {
	provider string
	result   Result
	err      error
}

// Locate races all providers for a single fix for the given key.
//
// Without a desired accuracy the first valid fix is returned. With desiredAccuracy > 0 the
// first fix at least that accurate is returned; if none arrives before the context is done
// or all providers have answered, the most accurate fix seen so far is returned instead.
// When no provider produced a fix, the joined provider errors are returned, wrapped with the
// context error if the context ended first.
func (o *Orchestrator) Locate(ctx context.Context, key string, desiredAccuracy float64) (Result, error) {
	if len(o.Providers) == 0 {
		return Result{}, ErrNoProviders
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan outcome, len(o.Providers))
	for _, p := range o.Providers {
		go func(p Provider) {
			res, err := o.safeLocate(ctx, p, key)
			outcomes <- outcome{provider: p.Name(), result: res, err: err}
		}(p)
	}

	var best Result
	var found bool
	var errs []error
	for range o.Providers {
		select {
		case <-ctx.Done():
			if found {
				return best, nil
			}
			errs = append(errs, ctx.Err())
			return Result{}, fmt.Errorf("%w: %w", ErrNoFix, errors.Join(errs...))
		case out := <-outcomes:
			if out.err != nil {
				o.debug("provider lookup failed", out.provider, out.err)
				errs = append(errs, fmt.Errorf("%s: %w", out.provider, out.err))
				continue
			}
			if !out.result.Coordinate().Valid() {
				errs = append(errs, fmt.Errorf("%s: %w", out.provider, ErrInvalidFix))
				continue
			}
			if !found || out.result.AccuracyMeters < best.AccuracyMeters {
				best, found = out.result, true
			}
			if desiredAccuracy <= 0 || best.AccuracyMeters <= desiredAccuracy {
				return best, nil
			}
		}
	}

	if found {
		return best, nil
	}
	return Result{}, errors.Join(errs...)
}

// safeLocate invokes Locate on a Provider and turns a panic into an error.
func (o *Orchestrator) safeLocate(ctx context.Context, provider Provider, key string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProviderPanic, r)
		}
	}()
	res, err = provider.Locate(ctx, key)
	if err != nil {
		return res, err
	}
	res.Key = key
	if res.Source == "" {
		res.Source = provider.Name()
	}
	return res, nil
}

// Track initiates concurrent geolocation tracking for a given key across multiple providers in the Orchestrator.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider continuously tracks a Provider for geolocation data, publishing results to
// the GeoBus and implementing backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan := o.safeLookup(ctx, p, key)
		if lookupChan == nil {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-lookupChan:
				if !ok {
					if !sleepOrDone(ctx, backoff) {
						return
					}
					backoff = nextBackoff(backoff)
					break stream
				}
				r.Key = key
				o.Bus.Publish(r)
				backoff = initialBackoff
			}
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result) {
	defer func() {
		if r := recover(); r != nil {
			o.debug("provider stream panicked", provider.Name(), fmt.Errorf("%v", r))
			ch = nil
		}
	}()
	return provider.LookupStream(ctx, key)
}

func (o *Orchestrator) debug(msg, provider string, err error) {
	if o.logger == nil {
		return
	}
	o.logger.Debug(msg, "provider", provider, logger.Err(err))
}
