// Package keyedlock provides mutual exclusion scoped to a string key.
// The queue uses it to serialize concurrent adds of the same title in
// the same room. The in-process locker is enough for a single instance;
// the Redis locker covers multi-process deployments.
package keyedlock

import (
	"context"
	"sync"
)

type Locker interface {
	// Acquire blocks until the key is held or ctx is done.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Mutex is an in-process keyed lock. Entries are reference counted and
// removed once the last holder releases, so the table does not grow
// with every title ever added.
type Mutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMutex() *Mutex {
	return &Mutex{
		entries: make(map[string]*entry),
	}
}

func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	release := func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}

	locked := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return release, nil
	case <-ctx.Done():
		// The pending lock still lands eventually; hand it straight
		// back so the refcount stays balanced.
		go func() {
			<-locked
			release()
		}()
		return nil, ctx.Err()
	}
}
