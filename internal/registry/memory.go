package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//MemoryRepository Registrations kept in process memory. Used in NOOP mode and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	regs   map[string]Registration
	failOn map[string]error
}

//NewMemoryRepository -_-
func NewMemoryRepository(regs ...Registration) *MemoryRepository {
	m := &MemoryRepository{
		regs:   make(map[string]Registration),
		failOn: make(map[string]error),
	}
	for _, reg := range regs {
		m.regs[reg.ID] = reg
	}
	return m
}

//FailOn Makes the given operation ("list", "find", "upsert", "delete", "update") fail for given id
//("" for list/find).
func (m *MemoryRepository) FailOn(op, id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op+"/"+id] = err
}

func (m *MemoryRepository) failure(op, id string) error {
	return m.failOn[op+"/"+id]
}

//Get Returns stored registration.
func (m *MemoryRepository) Get(id string) (Registration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	return reg, ok
}

//Len Number of stored registrations.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs)
}

func (m *MemoryRepository) sorted(filter func(Registration) bool) []Registration {
	out := make([]Registration, 0, len(m.regs))
	for _, reg := range m.regs {
		if filter == nil || filter(reg) {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//List -_-
func (m *MemoryRepository) List(_ context.Context) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("list", ""); err != nil {
		return nil, err
	}
	return m.sorted(nil), nil
}

//FindByDevice -_-
func (m *MemoryRepository) FindByDevice(_ context.Context, deviceID string) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("find", ""); err != nil {
		return nil, err
	}
	return m.sorted(func(reg Registration) bool { return reg.DeviceID == deviceID }), nil
}

//Upsert -_-
func (m *MemoryRepository) Upsert(_ context.Context, id string, req Request, now time.Time) (Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("upsert", id); err != nil {
		return Registration{}, err
	}

	var existing *Registration
	if reg, ok := m.regs[id]; ok {
		existing = &reg
	}

	merged := Merge(id, existing, req, now)
	m.regs[id] = merged
	return merged, nil
}

//Delete -_-
func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("delete", id); err != nil {
		return err
	}
	delete(m.regs, id)
	return nil
}

//DeleteMany -_-
func (m *MemoryRepository) DeleteMany(ctx context.Context, ids []string) []WriteOutcome {
	var outcomes []WriteOutcome
	for _, id := range ids {
		outcomes = append(outcomes, WriteOutcome{ID: id, Op: OpDelete, Err: m.Delete(ctx, id)})
	}
	return outcomes
}

//MarkDelivered -_-
func (m *MemoryRepository) MarkDelivered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update", id); err != nil {
		return err
	}

	reg, ok := m.regs[id]
	if !ok {
		return fmt.Errorf("registration %v not found", id)
	}
	reg.LastUsed = &at
	reg.Active = true
	m.regs[id] = reg
	return nil
}
