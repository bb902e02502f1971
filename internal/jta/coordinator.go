package jta

import (
	"context"
	"sync"
)

// ExternalCoordinator stands in for a coordinator configured outside the process,
// identified by name. Synchronization callbacks are queued until Complete runs them.
type ExternalCoordinator struct {
	name string

	mu        sync.Mutex
	callbacks []func(committed bool)
}

// SynchronizingCoordinator is an ExternalCoordinator that also accepts
// synchronization callbacks, so a bridge can be built over it.
type SynchronizingCoordinator struct {
	*ExternalCoordinator
}

// NewCoordinator returns nil for an empty name. With synchronization the returned
// coordinator implements Synchronizer.
func NewCoordinator(name string, synchronization bool) Coordinator {
	if name == "" {
		return nil
	}
	c := &ExternalCoordinator{name: name}
	if synchronization {
		return SynchronizingCoordinator{ExternalCoordinator: c}
	}
	return c
}

func (c *ExternalCoordinator) Name() string { return c.name }

// RegisterSynchronization queues afterCompletion for the next Complete.
func (c SynchronizingCoordinator) RegisterSynchronization(ctx context.Context, afterCompletion func(committed bool)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, afterCompletion)
	return nil
}

// Complete runs and clears the queued callbacks in registration order.
func (c *ExternalCoordinator) Complete(committed bool) {
	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(committed)
	}
}
