package board

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/dispatch"
	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Dispatcher receives one update per task whose ordering changed.
type Dispatcher interface {
	UpdatePosition(u dispatch.Update)
}

// OutOfRangeError reports a move index outside its column's bounds.
type OutOfRangeError struct {
	Column task.Status
	Field  string
	Index  int
	Max    int
}

func (e *OutOfRangeError) Error() string {
	if e.Max < 0 {
		return fmt.Sprintf("%s %d out of range: column %s is empty", e.Field, e.Index, e.Column)
	}
	return fmt.Sprintf("%s %d out of range [0, %d] for column %s", e.Field, e.Index, e.Max, e.Column)
}

// ErrorCode implements clierr.Coder.
func (e *OutOfRangeError) ErrorCode() string { return clierr.OutOfRangeIndex }

// MoveRequest moves the task at FromIndex of column From to ToIndex of
// column To. An empty To means From.
type MoveRequest struct {
	From      task.Status
	FromIndex int
	To        task.Status
	ToIndex   int

	// TaskID, when set, names the task the caller expects at FromIndex.
	// The move fails with CONFLICT if the column changed underneath.
	TaskID string
}

// Engine computes new positions after moves and hands the changed tasks to
// the dispatcher. It always works on the store's current state.
type Engine struct {
	snap   *snapshot.Store
	svc    store.Service
	disp   Dispatcher
	role   access.Role
	logger log.FieldLogger
	now    func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRole sets the caller role checked by every operation.
func WithRole(r access.Role) EngineOption {
	return func(e *Engine) { e.role = r }
}

// WithLogger sets the engine logger.
func WithLogger(l log.FieldLogger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine over snap. svc is used for the synchronous
// create, edit and delete operations; ordering changes go through d.
func NewEngine(snap *snapshot.Store, svc store.Service, d Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		snap:   snap,
		svc:    svc,
		disp:   d,
		role:   access.Default,
		logger: log.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Role returns the caller role of the engine.
func (e *Engine) Role() access.Role {
	return e.role
}

// MoveTask moves a task within one column.
func (e *Engine) MoveTask(column task.Status, fromIndex, toIndex int) ([]*task.Task, error) {
	return e.Move(MoveRequest{From: column, FromIndex: fromIndex, To: column, ToIndex: toIndex})
}

// Move moves a task within a column or into another one and returns copies
// of every task whose position or status changed. Rejected moves leave the
// snapshot untouched and dispatch nothing.
func (e *Engine) Move(req MoveRequest) ([]*task.Task, error) {
	if !access.CanReorder(e.role) {
		return nil, access.Denied(e.role, "reorder")
	}
	if req.To == "" {
		req.To = req.From
	}
	if !req.From.Valid() {
		return nil, task.ValidateStatus(string(req.From))
	}
	if !req.To.Valid() {
		return nil, task.ValidateStatus(string(req.To))
	}

	now := e.now()
	var changed []*task.Task
	err := e.snap.Update(func(tx *snapshot.Txn) error {
		src := tx.Column(req.From)
		if req.FromIndex < 0 || req.FromIndex >= len(src) {
			return &OutOfRangeError{Column: req.From, Field: "fromIndex", Index: req.FromIndex, Max: len(src) - 1}
		}
		if req.TaskID != "" && src[req.FromIndex].ID != req.TaskID {
			return clierr.Newf(clierr.Conflict,
				"task %s is no longer at %s #%d; the board changed, try again", req.TaskID, req.From, req.FromIndex)
		}

		if req.From == req.To {
			if req.ToIndex < 0 || req.ToIndex >= len(src) {
				return &OutOfRangeError{Column: req.To, Field: "toIndex", Index: req.ToIndex, Max: len(src) - 1}
			}
			moving := src[req.FromIndex]
			seq := slices.Insert(slices.Delete(slices.Clone(src), req.FromIndex, req.FromIndex+1), req.ToIndex, moving)
			changed = resequence(tx, seq, req.From, now)
			return nil
		}

		dst := tx.Column(req.To)
		if req.ToIndex < 0 || req.ToIndex > len(dst) {
			return &OutOfRangeError{Column: req.To, Field: "toIndex", Index: req.ToIndex, Max: len(dst)}
		}
		moving := src[req.FromIndex]
		rest := slices.Delete(slices.Clone(src), req.FromIndex, req.FromIndex+1)
		seq := slices.Insert(dst, req.ToIndex, moving)
		changed = append(resequence(tx, rest, req.From, now), resequence(tx, seq, req.To, now)...)
		return nil
	})
	if err != nil {
		var rangeErr *OutOfRangeError
		if errors.As(err, &rangeErr) {
			e.logger.WithFields(log.Fields{
				"workspace": e.snap.Workspace(),
				"from":      req.From,
				"fromIndex": req.FromIndex,
				"to":        req.To,
				"toIndex":   req.ToIndex,
			}).Warn(err.Error())
		}
		return nil, err
	}

	e.logger.WithFields(log.Fields{
		"workspace": e.snap.Workspace(),
		"from":      req.From,
		"to":        req.To,
		"changed":   len(changed),
	}).Debug("move applied")
	e.dispatch(changed)
	return sortChanged(changed), nil
}

// Compact re-densifies one column, ordering by current position, then
// creation time, then id. It repairs columns whose positions drifted
// outside the engine, for example after hand-edited task files.
func (e *Engine) Compact(status task.Status) ([]*task.Task, error) {
	if !access.CanReorder(e.role) {
		return nil, access.Denied(e.role, "reorder")
	}
	if !status.Valid() {
		return nil, task.ValidateStatus(string(status))
	}

	now := e.now()
	var changed []*task.Task
	err := e.snap.Update(func(tx *snapshot.Txn) error {
		col := tx.Column(status)
		slices.SortStableFunc(col, func(a, b *task.Task) int {
			if c := cmp.Compare(a.Position, b.Position); c != 0 {
				return c
			}
			if c := a.Created.Compare(b.Created); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		changed = resequence(tx, col, status, now)
		// Dirty tasks already in place are written again so the store
		// catches up. A failed write flags its task anew.
		for _, t := range col {
			if tx.IsDirty(t.ID) && !slices.ContainsFunc(changed, func(c *task.Task) bool { return c.ID == t.ID }) {
				t.Version = tx.NextVersion()
				t.Updated = now
				tx.Put(t)
				changed = append(changed, t.Clone())
			}
			tx.ClearDirty(t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(changed)
	return sortChanged(changed), nil
}

// CompactAll compacts every column.
func (e *Engine) CompactAll() ([]*task.Task, error) {
	var all []*task.Task
	for _, s := range task.Statuses() {
		changed, err := e.Compact(s)
		if err != nil {
			return all, err
		}
		all = append(all, changed...)
	}
	return all, nil
}

// Create stores a new task at the end of its column. The backing store call
// is synchronous; the task enters the snapshot only once it succeeded.
func (e *Engine) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if !access.CanCreate(e.role) {
		return nil, access.Denied(e.role, "create")
	}
	t = t.Clone()
	t.WorkspaceID = e.snap.Workspace()
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if !t.Status.Valid() {
		return nil, task.ValidateStatus(string(t.Status))
	}
	if t.ID == "" {
		t.ID = task.NewID()
	}
	t.Position = len(GroupByStatus(e.snap.Snapshot(), SortByPosition)[t.Status])
	t.Version = e.snap.NextVersion()

	created, err := e.svc.CreateTask(ctx, t)
	if err != nil {
		return nil, err
	}

	// Another move may have grown the column meanwhile; keep the new task last.
	var shifted []*task.Task
	err = e.snap.Update(func(tx *snapshot.Txn) error {
		local := created.Clone()
		if n := len(tx.Column(local.Status)); local.Position != n {
			local.Position = n
			local.Version = tx.NextVersion()
			shifted = append(shifted, local.Clone())
		}
		tx.Put(local)
		created = local.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(shifted)
	return created, nil
}

// Edit applies a content patch (title, description, priority, assignees,
// due date) through the backing store and mirrors the result locally.
// Ordering fields are rejected; use Move.
func (e *Engine) Edit(ctx context.Context, id string, p store.Patch) (*task.Task, error) {
	if !access.CanEdit(e.role) {
		return nil, access.Denied(e.role, "edit")
	}
	if p.Ordering() {
		return nil, clierr.New(clierr.InvalidInput, "position and status change through move")
	}
	if p.Empty() {
		return nil, clierr.New(clierr.NoChanges, "no changes specified")
	}
	if _, ok := e.snap.Get(id); !ok {
		return nil, task.NotFound(id)
	}

	updated, err := e.svc.UpdateTask(ctx, id, p)
	if err != nil {
		return nil, err
	}

	var local *task.Task
	err = e.snap.Update(func(tx *snapshot.Txn) error {
		t, ok := tx.Get(id)
		if !ok {
			return task.NotFound(id)
		}
		t.Title = updated.Title
		t.Description = updated.Description
		t.Priority = updated.Priority
		t.AssignedTo = slices.Clone(updated.AssignedTo)
		t.Due = date.Clone(updated.Due)
		t.Updated = updated.Updated
		tx.Put(t)
		local = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return local, nil
}

// Delete removes a task and closes the gap in its column right away, so
// positions stay dense between a deletion and the next move.
func (e *Engine) Delete(ctx context.Context, id string) ([]*task.Task, error) {
	if !access.CanDelete(e.role) {
		return nil, access.Denied(e.role, "delete")
	}
	if _, ok := e.snap.Get(id); !ok {
		return nil, task.NotFound(id)
	}
	if err := e.svc.DeleteTask(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := e.now()
	var changed []*task.Task
	err := e.snap.Update(func(tx *snapshot.Txn) error {
		t, ok := tx.Get(id)
		if !ok {
			return nil
		}
		tx.Delete(id)
		changed = resequence(tx, tx.Column(t.Status), t.Status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(changed)
	return sortChanged(changed), nil
}

func (e *Engine) dispatch(changed []*task.Task) {
	if e.disp == nil {
		return
	}
	for _, t := range changed {
		e.disp.UpdatePosition(dispatch.Update{
			TaskID:      t.ID,
			WorkspaceID: t.WorkspaceID,
			Position:    t.Position,
			Status:      t.Status,
			Version:     t.Version,
		})
	}
}

func sortChanged(tasks []*task.Task) []*task.Task {
	slices.SortFunc(tasks, func(a, b *task.Task) int {
		if c := cmp.Compare(a.Status.Index(), b.Status.Index()); c != 0 {
			return c
		}
		return comparePosition(a, b)
	})
	return tasks
}

// resequence assigns position = index to every task of seq and moves it to
// status. Only tasks whose position or status actually changed get a new
// version; copies of those are returned.
func resequence(tx *snapshot.Txn, seq []*task.Task, status task.Status, now time.Time) []*task.Task {
	var changed []*task.Task
	for i, t := range seq {
		if t.Position == i && t.Status == status {
			continue
		}
		old := t.Status
		t.Status = status
		t.Position = i
		task.UpdateTimestamps(t, old, status, now)
		t.Version = tx.NextVersion()
		t.Updated = now
		tx.Put(t)
		changed = append(changed, t.Clone())
	}
	return changed
}
