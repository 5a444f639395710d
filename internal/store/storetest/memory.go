// Package storetest provides an in-memory store.Service with fault
// injection for tests.
package storetest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Call records one UpdateTask invocation.
type Call struct {
	ID    string
	Patch store.Patch
}

// Memory is a concurrency-safe in-memory task service.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
	calls []Call

	// failures[id] is the number of UpdateTask calls for id that fail with
	// ErrTransient before one succeeds.
	failures map[string]int
	listErr  error
	gate     chan struct{}
	now      func() time.Time
}

// ErrTransient is the injected non-permanent failure.
var ErrTransient = fmt.Errorf("injected transient failure")

// NewMemory returns a service holding copies of tasks.
func NewMemory(tasks ...*task.Task) *Memory {
	m := &Memory{
		tasks:    make(map[string]*task.Task, len(tasks)),
		failures: make(map[string]int),
		now:      time.Now,
	}
	for _, t := range tasks {
		m.tasks[t.ID] = t.Clone()
	}
	return m
}

// FailUpdates makes the next n UpdateTask calls for id fail.
func (m *Memory) FailUpdates(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = n
}

// FailList makes ListTasks return err until cleared with nil.
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// Block makes UpdateTask wait until Unblock is called or its context ends.
func (m *Memory) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Unblock releases calls held by Block.
func (m *Memory) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns the UpdateTask invocations so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Set stores a copy of t, bypassing validation.
func (m *Memory) Set(t *task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t.Clone()
}

// Task returns a copy of the stored task.
func (m *Memory) Task(id string) (*task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t.Clone(), ok
}

// ListTasks implements store.Service.
func (m *Memory) ListTasks(_ context.Context, workspaceID string) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*task.Task
	for _, t := range m.tasks {
		if t.WorkspaceID == workspaceID {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *task.Task) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetTask implements store.Service.
func (m *Memory) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// CreateTask implements store.Service.
func (m *Memory) CreateTask(_ context.Context, t *task.Task) (*task.Task, error) {
	created := t.Clone()
	if err := store.PrepareCreate(created, m.now()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[created.ID]; ok {
		return nil, fmt.Errorf("%w: %s", store.ErrConflict, created.ID)
	}
	m.tasks[created.ID] = created.Clone()
	return created, nil
}

// UpdateTask implements store.Service.
func (m *Memory) UpdateTask(ctx context.Context, id string, p store.Patch) (*task.Task, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ID: id, Patch: p})
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.failures[id]; n > 0 {
		m.failures[id] = n - 1
		return nil, ErrTransient
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	next := t.Clone()
	if err := store.Apply(next, p, m.now()); err != nil {
		return nil, err
	}
	m.tasks[id] = next
	return next.Clone(), nil
}

// DeleteTask implements store.Service.
func (m *Memory) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	delete(m.tasks, id)
	return nil
}
