package vectorstore

import "sync"

type refLock struct {
	sync.RWMutex
	refs int
}

// keyedLocks hands out one RWMutex per collection name and forgets it once
// no goroutine holds or waits on it.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

func (k *keyedLocks) acquire(name string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[name]
	if !ok {
		l = &refLock{}
		k.locks[name] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(name string, l *refLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, name)
	}
}

// Lock takes the exclusive lock for name and returns its unlock function.
func (k *keyedLocks) Lock(name string) func() {
	l := k.acquire(name)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(name, l)
	}
}

// RLock takes the shared lock for name and returns its unlock function.
func (k *keyedLocks) RLock(name string) func() {
	l := k.acquire(name)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(name, l)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
