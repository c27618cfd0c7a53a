// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"time"
)

// LocateFunc performs a single lookup.
type LocateFunc func(ctx context.Context, key string) (Result, error)

// PollStream turns a one-shot lookup into a stream. It calls locate immediately and then
// every period, and only emits results that differ significantly from the last one emitted.
// Failed lookups are skipped. The channel is closed once ctx is done.
func PollStream(ctx context.Context, key string, period time.Duration, locate LocateFunc) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		state := &GeolocationState{}
		for {
			res, err := locate(ctx, key)
			if err == nil && state.HasChanged(res.Coordinate()) {
				state.Update(res.Coordinate())
				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}
			if !sleepOrDone(ctx, period) {
				return
			}
		}
	}()
	return out
}
