package chainsvc

import "sync"

// Allocator serializes render inserts per chain so the MAX(chain_position)+1
// read inside the insert transaction cannot race another insert on the same
// chain. Inserts into different chains proceed concurrently.
type Allocator struct {
	mu     sync.Mutex
	chains map[string]*sync.Mutex
}

func NewAllocator() *Allocator {
	return &Allocator{chains: make(map[string]*sync.Mutex)}
}

// Lock acquires the chain's mutex and returns its unlock function.
func (a *Allocator) Lock(chainID string) func() {
	a.mu.Lock()
	lock, ok := a.chains[chainID]
	if !ok {
		lock = &sync.Mutex{}
		a.chains[chainID] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
