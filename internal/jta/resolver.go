package jta

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Resolver picks the platform adapter for a persistence unit build. It is evaluated
// on every build and holds no cached decision.
type Resolver struct {
	env      Environment
	registry *Registry
}

// NewResolver creates a resolver for env. A nil registry uses DefaultRegistry.
func NewResolver(env Environment, registry *Registry) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if env.Server == "" {
		env.Server = ServerGeneric
	}
	return &Resolver{env: env, registry: registry}
}

// Environment returns the environment the resolver decides against.
func (r *Resolver) Environment() Environment {
	return r.env
}

// Resolve returns the adapter to use.
//
// Without a coordinator the no-JTA adapter is selected. With one, WebSphere gets its
// vendor adapter and anything else gets a Bridge. A nil Platform with a nil error
// means the bridge was unavailable but a naming service lets the engine fall back
// to its own default.
func (r *Resolver) Resolve() (Platform, error) {
	if !r.env.JTA() {
		return r.registry.First(NoPlatformCandidates)
	}

	if r.env.Server == ServerWebSphere {
		return r.registry.First(WebSphereCandidates)
	}

	bridge, err := NewBridge(r.env.Coordinator)
	if err != nil {
		if errors.Is(err, ErrBridgeUnavailable) && r.env.NamingAvailable {
			log.Debug().Err(err).Msg("Unable to set JTA platform, leaving engine default")
			return nil, nil
		}
		return nil, fmt.Errorf("unable to set JTA platform, is the coordinator supported: %w", err)
	}

	return bridge, nil
}

// Configure sets PropertyPlatform on props unless the caller already set it.
func (r *Resolver) Configure(props map[string]any) error {
	if _, ok := props[PropertyPlatform]; ok {
		return nil
	}

	platform, err := r.Resolve()
	if err != nil {
		return err
	}
	if platform != nil {
		props[PropertyPlatform] = platform
	}

	return nil
}
