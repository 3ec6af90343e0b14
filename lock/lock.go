// Package lock provides keyed mutual exclusion so a ticket is processed by
// one agent run at a time, in process or across replicas via Redis.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when a key stays held past the caller's deadline or
// the locker's wait budget.
var ErrLocked = errors.New("lock: key is held")

// Unlock releases a held key. Calling it more than once is safe.
type Unlock func()

// Locker acquires exclusive access to a key.
type Locker interface {
	// Lock blocks until the key is acquired or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process Locker keyed by string.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*entry)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, errors.Join(ErrLocked, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *LocalLocker) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (l *LocalLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.keys)
}
