package persistence

import (
	"context"
	"sync"
)

// orgLocks serializes work per organization id. Entries are dropped once the
// last holder or waiter is gone.
type orgLocks struct {
	mu sync.Mutex
	m  map[string]*orgLock
}

type orgLock struct {
	ch   chan struct{}
	refs int
}

func newOrgLocks() *orgLocks {
	return &orgLocks{m: make(map[string]*orgLock)}
}

// lock blocks until the lock for key is held or ctx is done.
func (l *orgLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &orgLock{ch: make(chan struct{}, 1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.drop(key, e)
		}, nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}
}

func (l *orgLocks) drop(key string, e *orgLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.m, key)
	}
}

// size reports the number of tracked keys.
func (l *orgLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
