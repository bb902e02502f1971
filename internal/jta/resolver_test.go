package jta

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type plainCoordinator struct{}

func (plainCoordinator) Name() string { return "plain" }

type syncCoordinator struct {
	plainCoordinator
	registered int
}

func (c *syncCoordinator) RegisterSynchronization(ctx context.Context, afterCompletion func(bool)) error {
	c.registered++
	return nil
}

func TestResolver_NoCoordinator(t *testing.T) {
	r := NewResolver(Environment{}, nil)

	p, err := r.Resolve()
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, NoPlatformCandidates[0], p.Name())
}

func TestResolver_NoCoordinatorFallsBackToOlderCandidate(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NoPlatformCandidates[0], func() (Platform, error) {
		return nil, errors.New("not loadable")
	})
	reg.Register(NoPlatformCandidates[1], Named(NoPlatformCandidates[1]))

	p, err := NewResolver(Environment{}, reg).Resolve()
	require.NoError(t, err)
	require.Equal(t, NoPlatformCandidates[1], p.Name())
}

func TestResolver_NoCandidateLoads(t *testing.T) {
	_, err := NewResolver(Environment{}, NewRegistry()).Resolve()
	require.ErrorIs(t, err, ErrPlatformResolution)
}

func TestResolver_WebSphere(t *testing.T) {
	env := Environment{Coordinator: &syncCoordinator{}, Server: ServerWebSphere}

	p, err := NewResolver(env, nil).Resolve()
	require.NoError(t, err)
	require.Equal(t, WebSphereCandidates[0], p.Name())

	_, err = NewResolver(env, NewRegistry()).Resolve()
	require.ErrorIs(t, err, ErrPlatformResolution)
}

func TestResolver_GenericCoordinator(t *testing.T) {
	t.Run("bridge wraps coordinator", func(t *testing.T) {
		coord := &syncCoordinator{}
		p, err := NewResolver(Environment{Coordinator: coord}, nil).Resolve()
		require.NoError(t, err)

		bridge, ok := p.(*Bridge)
		require.True(t, ok)
		require.Equal(t, "bridge:plain", bridge.Name())
		require.NoError(t, bridge.RegisterSynchronization(context.Background(), func(bool) {}))
		require.Equal(t, 1, coord.registered)
	})

	t.Run("bridge unavailable with naming service is not fatal", func(t *testing.T) {
		env := Environment{Coordinator: plainCoordinator{}, NamingAvailable: true}
		p, err := NewResolver(env, nil).Resolve()
		require.NoError(t, err)
		require.Nil(t, p)
	})

	t.Run("bridge unavailable without naming service is fatal", func(t *testing.T) {
		env := Environment{Coordinator: plainCoordinator{}}
		_, err := NewResolver(env, nil).Resolve()
		require.ErrorIs(t, err, ErrBridgeUnavailable)
	})
}

func TestResolver_Configure(t *testing.T) {
	t.Run("explicit property wins", func(t *testing.T) {
		props := map[string]any{PropertyPlatform: "custom"}
		// would fail to resolve, so Configure must not even try
		err := NewResolver(Environment{}, NewRegistry()).Configure(props)
		require.NoError(t, err)
		require.Equal(t, "custom", props[PropertyPlatform])
	})

	t.Run("inferred property set", func(t *testing.T) {
		props := map[string]any{}
		require.NoError(t, NewResolver(Environment{}, nil).Configure(props))
		p, ok := props[PropertyPlatform].(Platform)
		require.True(t, ok)
		require.Equal(t, NoPlatformCandidates[0], p.Name())
	})

	t.Run("fallback leaves property unset", func(t *testing.T) {
		props := map[string]any{}
		env := Environment{Coordinator: plainCoordinator{}, NamingAvailable: true}
		require.NoError(t, NewResolver(env, nil).Configure(props))
		require.NotContains(t, props, PropertyPlatform)
	})
}

func TestParseServerKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ServerKind
		wantErr bool
	}{
		{in: "", want: ServerGeneric},
		{in: "generic", want: ServerGeneric},
		{in: " WebSphere ", want: ServerWebSphere},
		{in: "jboss", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseServerKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
