package util

import "sync"

// KeyedMutex provides one RWMutex per string key. Writers to a user's graph
// or index must hold the write lock; query paths take the read lock so they
// never interleave with a mutation for the same user.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.RWMutex)}
}

func (k *KeyedMutex) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		k.locks[key] = lock
	}
	return lock
}

// Lock acquires the write lock for key and returns the unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	lock := k.get(key)
	lock.Lock()
	return lock.Unlock
}

// RLock acquires the read lock for key and returns the unlock function.
func (k *KeyedMutex) RLock(key string) func() {
	lock := k.get(key)
	lock.RLock()
	return lock.RUnlock
}
