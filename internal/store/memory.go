package store

import (
	"context"
	"sync"
	"time"

	"campusnav/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	locs  map[string]model.CustomLocation // id -> location
	order []string                        // insertion order
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{locs: map[string]model.CustomLocation{}, now: time.Now}
}

func (m *Memory) CreateCustomLocation(ctx context.Context, in model.CustomLocationInput) (model.CustomLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := newLocation(in, m.now())
	m.locs[loc.ID] = loc
	m.order = append(m.order, loc.ID)
	return loc, nil
}

func (m *Memory) ListCustomLocations(ctx context.Context, activeOnly bool) ([]model.CustomLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CustomLocation, 0, len(m.order))
	for _, id := range m.order {
		loc := m.locs[id]
		if activeOnly && !loc.IsActive {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

func (m *Memory) GetCustomLocation(ctx context.Context, id string) (model.CustomLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locs[id]
	if !ok {
		return model.CustomLocation{}, ErrNotFound
	}
	return loc, nil
}

func (m *Memory) UpdateCustomLocation(ctx context.Context, id string, patch model.CustomLocationPatch) (model.CustomLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locs[id]
	if !ok {
		return model.CustomLocation{}, ErrNotFound
	}
	applyPatch(&loc, patch)
	m.locs[id] = loc
	return loc, nil
}

func (m *Memory) DeleteCustomLocation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locs[id]; !ok {
		return ErrNotFound
	}
	delete(m.locs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ClearCustomLocations(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs = map[string]model.CustomLocation{}
	m.order = nil
	return nil
}
