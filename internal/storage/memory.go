package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskbot/internal/task"
)

// Memory is a map-backed Store. One mutex around every operation gives the
// same atomic read-modify-write contract as the sqlite driver.
type Memory struct {
	mu    sync.Mutex
	seq   int64
	tasks map[int64]*task.Task
}

func NewMemory() *Memory {
	return &Memory{tasks: map[int64]*task.Task{}}
}

func (m *Memory) Create(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = m.seq
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &task.NotFoundError{ID: id}
	}
	return t.Clone(), nil
}

func (m *Memory) Query(ctx context.Context, f Filter) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*task.Task
	for _, t := range m.tasks {
		if matches(t, f) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) AtomicUpdate(ctx context.Context, id int64, mutate Mutator) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[id]
	if !ok {
		return nil, &task.NotFoundError{ID: id}
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	m.tasks[id] = next
	return next.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return &task.NotFoundError{ID: id}
	}
	delete(m.tasks, id)
	return nil
}

func (m *Memory) Close() error { return nil }
