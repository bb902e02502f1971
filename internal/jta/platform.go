// Package jta selects the distributed-transaction platform adapter handed to the
// mapping engine when a persistence unit is built.
package jta

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PropertyPlatform is the unit property carrying the selected Platform.
const PropertyPlatform = "transaction.jta.platform"

var (
	// ErrPlatformResolution indicates no adapter candidate could be constructed.
	ErrPlatformResolution = errors.New("could not configure JTA platform")
	// ErrBridgeUnavailable indicates the coordinator lacks a capability the bridge needs.
	ErrBridgeUnavailable = errors.New("JTA coordinator bridge unavailable")
)

// ServerKind identifies the application runtime the process is hosted in.
type ServerKind string

const (
	ServerGeneric   ServerKind = "generic"
	ServerWebSphere ServerKind = "websphere"
)

// ParseServerKind converts a configuration value into a ServerKind.
func ParseServerKind(s string) (ServerKind, error) {
	switch ServerKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", ServerGeneric:
		return ServerGeneric, nil
	case ServerWebSphere:
		return ServerWebSphere, nil
	default:
		return "", fmt.Errorf("unknown server kind %q", s)
	}
}

// Environment is decided once at startup and consumed as plain data.
type Environment struct {
	// Coordinator is nil when no distributed-transaction coordinator is configured.
	Coordinator Coordinator
	// Server is the detected runtime variant.
	Server ServerKind
	// NamingAvailable reports whether a naming/directory service can be used for lookups.
	NamingAvailable bool
}

// JTA reports whether a coordinator is configured.
func (e Environment) JTA() bool {
	return e.Coordinator != nil
}

// Coordinator coordinates transactions spanning several resources.
type Coordinator interface {
	Name() string
}

// Synchronizer is the optional coordinator capability the bridge depends on.
type Synchronizer interface {
	RegisterSynchronization(ctx context.Context, afterCompletion func(committed bool)) error
}

// Platform is the adapter the mapping engine integrates with.
type Platform interface {
	Name() string
}

type namedPlatform struct {
	name string
}

func (p namedPlatform) Name() string { return p.name }

// Bridge adapts a generic Coordinator to the engine's platform contract.
type Bridge struct {
	coordinator  Coordinator
	synchronizer Synchronizer
}

// NewBridge wraps coordinator. ErrBridgeUnavailable is returned when the coordinator
// does not implement Synchronizer.
func NewBridge(coordinator Coordinator) (*Bridge, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("%w: no coordinator", ErrBridgeUnavailable)
	}
	synchronizer, ok := coordinator.(Synchronizer)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support synchronization callbacks",
			ErrBridgeUnavailable, coordinator.Name())
	}
	return &Bridge{coordinator: coordinator, synchronizer: synchronizer}, nil
}

// Name returns the adapter name.
func (b *Bridge) Name() string { return "bridge:" + b.coordinator.Name() }

// Coordinator returns the wrapped coordinator.
func (b *Bridge) Coordinator() Coordinator { return b.coordinator }

// RegisterSynchronization forwards to the coordinator.
func (b *Bridge) RegisterSynchronization(ctx context.Context, afterCompletion func(committed bool)) error {
	return b.synchronizer.RegisterSynchronization(ctx, afterCompletion)
}
