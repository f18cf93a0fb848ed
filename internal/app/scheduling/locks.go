package scheduling

import "sync"

// keyedMutex hands out one mutex per key. Mutexes are created lazily and
// live for the life of the process, which is fine for a bounded fleet.
type keyedMutex struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{mutexes: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key string) { k.get(key).Lock() }

func (k *keyedMutex) Unlock(key string) { k.get(key).Unlock() }

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.mutexes[key]
	if !ok {
		m = &sync.Mutex{}
		k.mutexes[key] = m
	}
	return m
}
