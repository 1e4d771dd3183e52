package ward

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyedLocks hands out one mutex per key and forgets it once no goroutine
// holds or waits on it.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// lockPatient must be taken before any bed lock.
func (k *keyedLocks) lockPatient(id uuid.UUID) func() {
	return k.lock("patient:" + id.String())
}

// lockBeds locks the given beds in ascending order and returns a single
// release func.
func (k *keyedLocks) lockBeds(numbers ...int) func() {
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	var unlocks []func()
	prev := 0
	for i, n := range sorted {
		if i > 0 && n == prev {
			continue
		}
		unlocks = append(unlocks, k.lock(fmt.Sprintf("bed:%d", n)))
		prev = n
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
