// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/place/internal/geobus"
)

const (
	dbusListNames = "org.freedesktop.DBus.ListNames"

	// DemoAgentName is the bus name of the agent shipped with GeoClue.
	DemoAgentName = "org.freedesktop.GeoClue2.DemoAgent"
)

// Authorizer decides whether the host hands out locations. GeoClue is asked for its available
// accuracy level; optionally one of the given agents must own a name on the session bus.
type Authorizer struct {
	requireAgent bool
	agents       []string
	dial         func(ctx context.Context) (bus, error)
	listNames    func(ctx context.Context) ([]string, error)
}

func NewAuthorizer(requireAgent bool, agents []string) *Authorizer {
	if len(agents) == 0 {
		agents = []string{DemoAgentName}
	}
	return &Authorizer{
		requireAgent: requireAgent,
		agents:       agents,
		dial:         dialSystemBus,
		listNames:    sessionBusNames,
	}
}

func (a *Authorizer) Authorize(ctx context.Context) error {
	if a.requireAgent {
		running, err := a.agentIsRunning(ctx)
		if err != nil {
			return fmt.Errorf("failed to look up geoclue agent: %w", err)
		}
		if !running {
			return fmt.Errorf("%w: no geoclue agent is running", geobus.ErrAccessDenied)
		}
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	return checkAvailable(conn)
}

func (a *Authorizer) agentIsRunning(ctx context.Context) (bool, error) {
	names, err := a.listNames(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(names, func(name string) bool {
		return slices.ContainsFunc(a.agents, func(agent string) bool {
			return strings.EqualFold(name, agent)
		})
	}), nil
}

func sessionBusNames(ctx context.Context) (names []string, err error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	if err = conn.BusObject().CallWithContext(ctx, dbusListNames, 0).Store(&names); err != nil {
		return nil, fmt.Errorf("failed to call DBus ListNames: %w", err)
	}
	return names, nil
}
