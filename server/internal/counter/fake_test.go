package counter

import (
	"context"
	"fmt"
	"sync"

	"github.com/kalfix/kalfix/pkg/types"
)

// memStore is an in-memory Store with the same conditional-increment
// semantics as the SQLite store.
type memStore struct {
	mu         sync.Mutex
	shifts     map[types.Identity]*types.Shift
	finalized  map[types.Identity]int
	increments []int64
	failWith   error
}

func newMemStore() *memStore {
	return &memStore{
		shifts:    make(map[types.Identity]*types.Shift),
		finalized: make(map[types.Identity]int),
	}
}

func (m *memStore) GetOrCreateShift(_ context.Context, id types.Identity) (types.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.get(id), nil
}

func (m *memStore) FinalizeShift(_ context.Context, id types.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized[id]++
	return nil
}

func (m *memStore) IncrementShiftBy(_ context.Context, id types.Identity, base, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	sh := m.get(id)
	if sh.Gross != base {
		return sh.Gross, fmt.Errorf("increment: baseline %d, persisted %d: %w", base, sh.Gross, types.ErrConflict)
	}
	sh.Gross += delta
	m.increments = append(m.increments, delta)
	return sh.Gross, nil
}

func (m *memStore) gross(id types.Identity) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id).Gross
}

func (m *memStore) get(id types.Identity) *types.Shift {
	sh, ok := m.shifts[id]
	if !ok {
		sh = &types.Shift{Name: id.Name, Date: id.Date}
		m.shifts[id] = sh
	}
	return sh
}
