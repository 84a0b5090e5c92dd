package lock

import (
	"context"
	"sync"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.Locker = (*KeyedLocker)(nil)

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process lock table. Each key gets its own one-slot
// semaphore, created on first use and dropped when no goroutine holds or waits on it.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyEntry)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) release(key string, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Len reports how many keys currently have holders or waiters.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
