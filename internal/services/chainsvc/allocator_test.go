package chainsvc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocatorSerializesSameChain(t *testing.T) {
	allocator := NewAllocator()

	const writers = 32
	positions := make([]int, 0, writers)
	next := 0

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := allocator.Lock("chain-1")
			defer unlock()

			// Simulates the read-then-insert the lock protects.
			positions = append(positions, next)
			next++
		}()
	}
	wg.Wait()

	assert.Len(t, positions, writers)
	seen := make(map[int]bool, writers)
	for _, p := range positions {
		assert.False(t, seen[p], "position %d allocated twice", p)
		seen[p] = true
		assert.Less(t, p, writers)
	}
}

func TestAllocatorIndependentChains(t *testing.T) {
	allocator := NewAllocator()

	unlockA := allocator.Lock("chain-a")
	defer unlockA()

	// A held lock on one chain must not block another chain.
	done := make(chan struct{})
	go func() {
		unlockB := allocator.Lock("chain-b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestAllocatorReentryAfterUnlock(t *testing.T) {
	allocator := NewAllocator()

	unlock := allocator.Lock("chain-a")
	unlock()

	unlock = allocator.Lock("chain-a")
	unlock()
}
