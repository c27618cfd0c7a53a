// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/place/internal/geobus"
)

// Status is the outcome of a location query. Every non-OK Status is an error; its integer
// value is used as process exit code.
type Status int

const (
	StatusOK           Status = 0
	StatusDenied       Status = 1
	StatusServiceError Status = 2
	StatusTimeout      Status = 3
	StatusDisabled     Status = 64
)

func (s Status) Error() string {
	switch s {
	case StatusOK:
		return "querying location: success"
	case StatusDenied:
		return "querying location: access to location services denied"
	case StatusServiceError:
		return "querying location: location service unavailable or failed"
	case StatusTimeout:
		return "querying location: no location fix before the timeout"
	case StatusDisabled:
		return "querying location: location services disabled"
	default:
		return fmt.Sprintf("querying location: unknown status code %d", int(s))
	}
}

// String returns a short label for the Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDenied:
		return "denied"
	case StatusServiceError:
		return "service_error"
	case StatusTimeout:
		return "timeout"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// StatusOf maps an error to a Status. A Status anywhere in the chain wins, then context
// errors, then access denial, then disabled services. Everything else is a service error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var status Status
	if errors.As(err, &status) {
		return status
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StatusTimeout
	}
	return failureStatus(err)
}

// failureStatus classifies errors of sources that failed on their own.
func failureStatus(err error) Status {
	switch {
	case errors.Is(err, geobus.ErrAccessDenied):
		return StatusDenied
	case errors.Is(err, geobus.ErrServiceDisabled), errors.Is(err, geobus.ErrNoProviders):
		return StatusDisabled
	default:
		return StatusServiceError
	}
}
