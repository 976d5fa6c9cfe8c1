package attachments

import "sync"

// keyedMutex serializes operations on the same attachment id while letting
// unrelated ids proceed concurrently. Locks are created on demand and dropped
// once the last holder releases, so the map stays bounded by in-flight ids.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*idLock)}
}

// lock acquires the mutex for id and returns the release function.
func (k *keyedMutex) lock(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &idLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
