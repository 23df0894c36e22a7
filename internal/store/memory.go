package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"restructure-engine/internal/model"
)

// Memory implements Plans, Contracts and Schedules in memory.
// Everything crossing the boundary is copied.
type Memory struct {
	mu        sync.RWMutex
	plans     map[string]*model.Plan
	contracts map[string]model.ContractSnapshot
	schedules map[string][]model.ScheduleRow
}

func NewMemory() *Memory {
	return &Memory{
		plans:     make(map[string]*model.Plan),
		contracts: make(map[string]model.ContractSnapshot),
		schedules: make(map[string][]model.ScheduleRow),
	}
}

func (m *Memory) Get(_ context.Context, contractID string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[contractID]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", contractID, ErrNotFound)
	}
	return p.Clone(), nil
}

func (m *Memory) Save(_ context.Context, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.plans[plan.ContractID]; ok {
		stored = cur.Version
	}
	if stored != plan.Version {
		return fmt.Errorf("plan %s at version %d, stored %d: %w", plan.ContractID, plan.Version, stored, ErrVersionConflict)
	}

	c := plan.Clone()
	c.Version++
	m.plans[plan.ContractID] = c
	plan.Version = c.Version
	return nil
}

func (m *Memory) ListByState(_ context.Context, states ...model.State) ([]*model.Plan, error) {
	want := make(map[model.State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if want[p.State] {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	return out, nil
}

// PutContract registers a snapshot for Contract lookups.
func (m *Memory) PutContract(c model.ContractSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ContractID] = c
}

func (m *Memory) Contract(_ context.Context, contractID string) (model.ContractSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return model.ContractSnapshot{}, fmt.Errorf("contract %s: %w", contractID, ErrNotFound)
	}
	return c, nil
}

func (m *Memory) WriteSchedule(_ context.Context, contractID, _ string, rows []model.ScheduleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[contractID] = append([]model.ScheduleRow(nil), rows...)
	return nil
}

// Schedule returns the last table written for a contract.
func (m *Memory) Schedule(contractID string) []model.ScheduleRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ScheduleRow(nil), m.schedules[contractID]...)
}
