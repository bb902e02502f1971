package jta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCoordinator(t *testing.T) {
	require.Nil(t, NewCoordinator("", true))

	plain := NewCoordinator("tm", false)
	require.Equal(t, "tm", plain.Name())
	_, ok := plain.(Synchronizer)
	require.False(t, ok)

	_, err := NewBridge(plain)
	require.ErrorIs(t, err, ErrBridgeUnavailable)
}

func TestSynchronizingCoordinator_Complete(t *testing.T) {
	coord := NewCoordinator("tm", true)

	bridge, err := NewBridge(coord)
	require.NoError(t, err)
	require.Equal(t, "bridge:tm", bridge.Name())

	var got []bool
	require.NoError(t, bridge.RegisterSynchronization(context.Background(), func(committed bool) {
		got = append(got, committed)
	}))

	coord.(SynchronizingCoordinator).Complete(true)
	coord.(SynchronizingCoordinator).Complete(false)
	require.Equal(t, []bool{true}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, bridge.RegisterSynchronization(ctx, func(bool) {}))
}
