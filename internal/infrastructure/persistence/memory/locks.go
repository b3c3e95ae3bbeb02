package memory

import (
	"context"
	"sync"
)

// keyLocks is a set of named mutexes whose acquisition honours context
// cancellation. Entries are never removed; the key space (prefix, year,
// department) is small.
type keyLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{slots: make(map[string]chan struct{})}
}

func (k *keyLocks) slot(name string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[name] = ch
	}
	return ch
}

func (k *keyLocks) lock(ctx context.Context, name string) error {
	select {
	case k.slot(name) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyLocks) unlock(name string) {
	<-k.slot(name)
}
