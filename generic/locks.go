package generic

import "sync"

// KeyedLocker serializes work per contract id while letting distinct ids run
// in parallel. Entries are reference counted and dropped when unused.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[ContractID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[ContractID]*keyedEntry)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *KeyedLocker) Lock(id ContractID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
