package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrgLocks(t *testing.T) {
	ctx := context.Background()
	l := newOrgLocks()

	unlock, err := l.lock(ctx, "org-1")
	require.NoError(t, err)

	// other keys are independent
	unlockOther, err := l.lock(ctx, "org-2")
	require.NoError(t, err)
	unlockOther()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.lock(waitCtx, "org-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan func(), 1)
	go func() {
		u, err := l.lock(ctx, "org-1")
		if err == nil {
			acquired <- u
		}
	}()

	unlock()
	select {
	case u := <-acquired:
		u()
	case <-time.After(time.Second):
		t.Fatal("lock was not handed to the waiter")
	}

	require.Zero(t, l.size())
}
