// Package snapshot holds the in-memory task state of one workspace.
//
// A Store is the single owner of that state. Readers get deep copies;
// writers go through Update, which applies a function to a private working
// copy and commits it only when the function succeeds.
package snapshot

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Store is the versioned task snapshot of a workspace.
type Store struct {
	mu        sync.RWMutex
	workspace string
	tasks     map[string]*task.Task
	dirty     map[string]struct{}
	version   uint64

	clock atomic.Int64
}

// New creates a store for workspaceID seeded with tasks. Tasks of other
// workspaces are ignored.
func New(workspaceID string, tasks []*task.Task) *Store {
	s := &Store{
		workspace: workspaceID,
		tasks:     make(map[string]*task.Task, len(tasks)),
		dirty:     make(map[string]struct{}),
	}
	for _, t := range tasks {
		if t == nil || t.WorkspaceID != workspaceID {
			continue
		}
		s.tasks[t.ID] = t.Clone()
		s.observe(t.Version)
	}
	return s
}

// Workspace returns the workspace this store belongs to.
func (s *Store) Workspace() string {
	return s.workspace
}

// Version returns a counter bumped on every committed change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Snapshot returns deep copies of all tasks ordered by column, position and id.
func (s *Store) Snapshot() []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.tasks, true)
}

// View returns Snapshot together with the version it was taken at.
func (s *Store) View() ([]*task.Task, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.tasks, true), s.version
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (*task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update runs fn against a working copy of the store. The copy replaces the
// store's state only when fn returns nil and changed something.
func (s *Store) Update(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Txn{store: s, tasks: make(map[string]*task.Task, len(s.tasks))}
	for id, t := range s.tasks {
		tx.tasks[id] = t.Clone()
	}
	if err := fn(tx); err != nil {
		return err
	}

	cleaned := false
	for id := range tx.clean {
		if _, ok := s.dirty[id]; ok {
			delete(s.dirty, id)
			cleaned = true
		}
	}
	if !tx.changed {
		if cleaned {
			s.version++
		}
		return nil
	}

	for id := range s.dirty {
		if _, ok := tx.tasks[id]; !ok {
			delete(s.dirty, id)
		}
	}
	s.tasks = tx.tasks
	s.version++
	return nil
}

// NextVersion returns a time-based version that is strictly greater than
// every version this store has produced or observed.
func (s *Store) NextVersion() int64 {
	for {
		now := time.Now().UnixNano()
		last := s.clock.Load()
		if now <= last {
			now = last + 1
		}
		if s.clock.CompareAndSwap(last, now) {
			return now
		}
	}
}

func (s *Store) observe(v int64) {
	for {
		last := s.clock.Load()
		if v <= last || s.clock.CompareAndSwap(last, v) {
			return
		}
	}
}

// Reconcile applies a task returned by the backing store when it is at least
// as new as the local copy. Unknown tasks are not added; Resync does that.
func (s *Store) Reconcile(remote *task.Task) bool {
	if remote == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	local, ok := s.tasks[remote.ID]
	if !ok || remote.Version < local.Version {
		return false
	}
	s.tasks[remote.ID] = remote.Clone()
	delete(s.dirty, remote.ID)
	s.observe(remote.Version)
	s.version++
	return true
}

// Resync replaces the store's state with a fresh remote listing. A task for
// which pinned returns true keeps its local copy when that copy is newer,
// since its write has not been delivered yet.
//
// Replaced tasks lose their out-of-sync flag unless their column comes back
// with gaps or duplicate positions, for example after only part of a move
// was written. Every task of such a column is flagged until a compaction
// repairs it.
func (s *Store) Resync(remote []*task.Task, pinned func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*task.Task, len(remote))
	for _, r := range remote {
		if r == nil || r.WorkspaceID != s.workspace {
			continue
		}
		s.observe(r.Version)
		if local, ok := s.tasks[r.ID]; ok && pinned != nil && pinned(r.ID) && local.Version > r.Version {
			next[r.ID] = local
			continue
		}
		next[r.ID] = r.Clone()
		delete(s.dirty, r.ID)
	}
	for id := range s.dirty {
		if _, ok := next[id]; !ok {
			delete(s.dirty, id)
		}
	}
	for _, id := range brokenColumnTasks(next) {
		s.dirty[id] = struct{}{}
	}
	s.tasks = next
	s.version++
}

// brokenColumnTasks returns the ids of tasks in columns whose positions are
// not exactly 0..n-1.
func brokenColumnTasks(tasks map[string]*task.Task) []string {
	cols := make(map[task.Status][]*task.Task)
	for _, t := range tasks {
		cols[t.Status] = append(cols[t.Status], t)
	}
	var ids []string
	for _, col := range cols {
		slices.SortFunc(col, byPosition)
		for i, t := range col {
			if t.Position != i {
				for _, c := range col {
					ids = append(ids, c.ID)
				}
				break
			}
		}
	}
	return ids
}

// MarkDirty flags a task whose local state could not be persisted.
func (s *Store) MarkDirty(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return
	}
	if _, ok := s.dirty[id]; !ok {
		s.dirty[id] = struct{}{}
		s.version++
	}
}

// IsDirty reports whether a task is out of sync with the backing store.
func (s *Store) IsDirty(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dirty[id]
	return ok
}

// Dirty returns the ids of all out-of-sync tasks, sorted.
func (s *Store) Dirty() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Txn is the working copy handed to Update callbacks. Tasks returned by a
// Txn are the working copies themselves and may be modified in place.
type Txn struct {
	store   *Store
	tasks   map[string]*task.Task
	clean   map[string]struct{}
	changed bool
}

// Workspace returns the workspace of the underlying store.
func (tx *Txn) Workspace() string {
	return tx.store.workspace
}

// Tasks returns all working copies ordered by column, position and id.
func (tx *Txn) Tasks() []*task.Task {
	return sorted(tx.tasks, false)
}

// Column returns the working copies with the given status ordered by
// position, then id.
func (tx *Txn) Column(status task.Status) []*task.Task {
	var col []*task.Task
	for _, t := range tx.tasks {
		if t.Status == status {
			col = append(col, t)
		}
	}
	slices.SortFunc(col, byPosition)
	return col
}

// Get returns the working copy of a task. Callers that modify it must Put it.
func (tx *Txn) Get(id string) (*task.Task, bool) {
	t, ok := tx.tasks[id]
	return t, ok
}

// Put stores t in the working copy.
func (tx *Txn) Put(t *task.Task) {
	tx.tasks[t.ID] = t
	tx.store.observe(t.Version)
	tx.changed = true
}

// Delete removes a task from the working copy.
func (tx *Txn) Delete(id string) {
	if _, ok := tx.tasks[id]; ok {
		delete(tx.tasks, id)
		tx.changed = true
	}
}

// ClearDirty drops the out-of-sync flag of a task when the transaction
// commits. A later failed write flags it again.
func (tx *Txn) ClearDirty(id string) {
	if tx.clean == nil {
		tx.clean = make(map[string]struct{})
	}
	tx.clean[id] = struct{}{}
}

// IsDirty reports whether the task is flagged out of sync.
func (tx *Txn) IsDirty(id string) bool {
	_, ok := tx.store.dirty[id]
	return ok
}

// NextVersion returns a fresh task version.
func (tx *Txn) NextVersion() int64 {
	return tx.store.NextVersion()
}

func sorted(m map[string]*task.Task, clone bool) []*task.Task {
	out := make([]*task.Task, 0, len(m))
	for _, t := range m {
		if clone {
			t = t.Clone()
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *task.Task) int {
		if c := cmp.Compare(a.Status.Index(), b.Status.Index()); c != 0 {
			return c
		}
		return byPosition(a, b)
	})
	return out
}

func byPosition(a, b *task.Task) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
