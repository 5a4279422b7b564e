package ledger

import (
	"sync"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// plateLocks hands out one mutex per plate. Entries are reference counted
// and dropped when the last holder unlocks, so the map only ever contains
// plates with an operation in flight.
type plateLocks struct {
	mu    sync.Mutex
	locks map[domain.Plate]*plateLock
}

type plateLock struct {
	sync.Mutex
	refs int
}

func newPlateLocks() *plateLocks {
	return &plateLocks{locks: make(map[domain.Plate]*plateLock)}
}

// lock blocks until the caller holds the mutex for p and returns its release func.
func (k *plateLocks) lock(p domain.Plate) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[p]
	if !ok {
		l = &plateLock{}
		k.locks[p] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, p)
		}
		k.mu.Unlock()
	}
}

// inFlight reports how many plates currently have a lock entry. Used by tests.
func (k *plateLocks) inFlight() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
