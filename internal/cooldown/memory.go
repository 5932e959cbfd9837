package cooldown

import (
	"context"
	"sync"
)

//MemoryLockStore Process local lock. Only correct with a single instance; used in NOOP mode and tests.
type MemoryLockStore struct {
	mu   sync.Mutex
	lock *Lock
	err  error
}

//NewMemoryLockStore -_-
func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{}
}

//Transact -_-
func (m *MemoryLockStore) Transact(_ context.Context, decide DecideFunc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}

	var current *Lock
	if m.lock != nil {
		c := *m.lock
		current = &c
	}

	next, allow := decide(current)
	if next != nil {
		m.lock = next
	}
	return allow, nil
}

//Current Stored lock, nil when none.
func (m *MemoryLockStore) Current() *Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lock == nil {
		return nil
	}
	c := *m.lock
	return &c
}

//SetError Makes every following transaction fail with err (nil to heal).
func (m *MemoryLockStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
