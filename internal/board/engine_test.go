package board

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/dispatch"
	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/store/storetest"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu      sync.Mutex
	updates []dispatch.Update
}

func (f *fakeDispatcher) UpdatePosition(u dispatch.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

func (f *fakeDispatcher) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.updates))
	for i, u := range f.updates {
		out[i] = u.TaskID
	}
	slices.Sort(out)
	return out
}

func newTask(id string, status task.Status, pos int) *task.Task {
	return &task.Task{
		ID:          id,
		WorkspaceID: "ws",
		Title:       "task " + id,
		Status:      status,
		Priority:    task.PriorityMedium,
		Position:    pos,
		Version:     1,
		Created:     fixedNow.Add(-time.Hour),
		Updated:     fixedNow.Add(-time.Hour),
	}
}

type fixture struct {
	engine *Engine
	snap   *snapshot.Store
	svc    *storetest.Memory
	disp   *fakeDispatcher
	hook   *test.Hook
}

func newFixture(t *testing.T, role access.Role, tasks ...*task.Task) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	f := &fixture{
		snap: snapshot.New("ws", tasks),
		svc:  storetest.NewMemory(tasks...),
		disp: &fakeDispatcher{},
		hook: hook,
	}
	f.engine = NewEngine(f.snap, f.svc, f.disp,
		WithRole(role), WithLogger(logger), WithClock(func() time.Time { return fixedNow }))
	return f
}

func (f *fixture) column(status task.Status) []string {
	var ids []string
	for _, t := range GroupByStatus(f.snap.Snapshot(), SortByPosition)[status] {
		ids = append(ids, t.ID)
	}
	return ids
}

func (f *fixture) positions(status task.Status) []int {
	var ps []int
	for _, t := range GroupByStatus(f.snap.Snapshot(), SortByPosition)[status] {
		ps = append(ps, t.Position)
	}
	return ps
}

func threeTodo() []*task.Task {
	return []*task.Task{
		newTask("A", task.StatusTodo, 0),
		newTask("B", task.StatusTodo, 1),
		newTask("C", task.StatusTodo, 2),
	}
}

func TestMoveWithinColumn(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)

	changed, err := f.engine.MoveTask(task.StatusTodo, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"B", "C", "A"}) {
		t.Fatalf("order = %v", got)
	}
	if got := f.positions(task.StatusTodo); !slices.Equal(got, []int{0, 1, 2}) {
		t.Fatalf("positions = %v", got)
	}
	if len(changed) != 3 {
		t.Fatalf("expected 3 changed tasks, got %d", len(changed))
	}
	if got := f.disp.ids(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("dispatched %v", got)
	}
	for _, u := range f.disp.updates {
		if u.Version <= 1 {
			t.Fatalf("update for %s carries no new version", u.TaskID)
		}
	}
}

func TestMoveOutOfRange(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	before := f.snap.Version()

	_, err := f.engine.MoveTask(task.StatusTodo, 5, 0)
	if clierr.CodeOf(err) != clierr.OutOfRangeIndex {
		t.Fatalf("expected %s, got %v", clierr.OutOfRangeIndex, err)
	}
	if f.snap.Version() != before {
		t.Fatalf("rejected move changed the snapshot")
	}
	if len(f.disp.ids()) != 0 {
		t.Fatalf("rejected move dispatched updates")
	}
	if entry := f.hook.LastEntry(); entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected a warning to be logged, got %+v", entry)
	}

	if _, err := f.engine.MoveTask(task.StatusTodo, 0, 3); clierr.CodeOf(err) != clierr.OutOfRangeIndex {
		t.Fatalf("toIndex past the column end must be rejected, got %v", err)
	}
	if _, err := f.engine.MoveTask(task.StatusDone, 0, 0); clierr.CodeOf(err) != clierr.OutOfRangeIndex {
		t.Fatalf("move out of an empty column must be rejected, got %v", err)
	}
}

func TestMoveAcrossColumns(t *testing.T) {
	tasks := append(threeTodo(), newTask("D", task.StatusDone, 0), newTask("E", task.StatusDone, 1))
	f := newFixture(t, access.Member{}, tasks...)

	changed, err := f.engine.Move(MoveRequest{From: task.StatusTodo, FromIndex: 1, To: task.StatusDone, ToIndex: 0})
	if err != nil {
		t.Fatal(err)
	}

	b, _ := f.snap.Get("B")
	if b.Status != task.StatusDone || b.Position != 0 {
		t.Fatalf("moved task = %s/%d", b.Status, b.Position)
	}
	if b.Completed == nil || !b.Completed.Equal(fixedNow) {
		t.Fatalf("completion time not set: %v", b.Completed)
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"A", "C"}) {
		t.Fatalf("todo = %v", got)
	}
	if got := f.positions(task.StatusTodo); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("todo positions = %v", got)
	}
	if got := f.column(task.StatusDone); !slices.Equal(got, []string{"B", "D", "E"}) {
		t.Fatalf("done = %v", got)
	}
	// A keeps position 0 and is not dispatched.
	if got := f.disp.ids(); !slices.Equal(got, []string{"B", "C", "D", "E"}) {
		t.Fatalf("dispatched %v", got)
	}
	if changed[0].Status != task.StatusTodo || changed[len(changed)-1].Status != task.StatusDone {
		t.Fatalf("changed tasks not in board order")
	}
	if err := CheckInvariant(f.snap.Snapshot()); err != nil {
		t.Fatal(err)
	}
}

func TestMoveToEndOfOtherColumn(t *testing.T) {
	tasks := append(threeTodo(), newTask("D", task.StatusInProgress, 0))
	f := newFixture(t, access.Member{}, tasks...)

	if _, err := f.engine.Move(MoveRequest{From: task.StatusTodo, FromIndex: 0, To: task.StatusInProgress, ToIndex: 1}); err != nil {
		t.Fatal(err)
	}
	if got := f.column(task.StatusInProgress); !slices.Equal(got, []string{"D", "A"}) {
		t.Fatalf("in-progress = %v", got)
	}
	a, _ := f.snap.Get("A")
	if a.Started == nil {
		t.Fatalf("start time not set")
	}
}

func TestRandomMovesKeepPositionsDense(t *testing.T) {
	var tasks []*task.Task
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		tasks = append(tasks, newTask(id, task.Statuses()[i%3], i/3))
	}
	f := newFixture(t, access.Owner{}, tasks...)
	rng := rand.New(rand.NewPCG(7, 11))
	statuses := task.Statuses()

	for i := range 500 {
		from := statuses[rng.IntN(len(statuses))]
		to := statuses[rng.IntN(len(statuses))]
		counts := GroupByStatus(f.snap.Snapshot(), SortByPosition).Counts()
		// Index ranges reach one past the valid bounds so some moves are rejected.
		fromIdx := rng.IntN(counts[from] + 1)
		toIdx := rng.IntN(counts[to] + 2)

		_, err := f.engine.Move(MoveRequest{From: from, FromIndex: fromIdx, To: to, ToIndex: toIdx})
		if err != nil && clierr.CodeOf(err) != clierr.OutOfRangeIndex {
			t.Fatalf("move %d: unexpected error %v", i, err)
		}
		snap := f.snap.Snapshot()
		if len(snap) != len(tasks) {
			t.Fatalf("move %d: task count changed to %d", i, len(snap))
		}
		if err := CheckInvariant(snap); err != nil {
			t.Fatalf("move %d (%s[%d] -> %s[%d]): %v", i, from, fromIdx, to, toIdx, err)
		}
	}
}

func TestViewerCannotReorder(t *testing.T) {
	f := newFixture(t, access.Viewer{}, threeTodo()...)

	if _, err := f.engine.MoveTask(task.StatusTodo, 0, 1); clierr.CodeOf(err) != clierr.PermissionDenied {
		t.Fatalf("expected %s, got %v", clierr.PermissionDenied, err)
	}
	if _, err := f.engine.Create(context.Background(), &task.Task{Title: "x"}); clierr.CodeOf(err) != clierr.PermissionDenied {
		t.Fatalf("viewer created a task: %v", err)
	}
	if len(f.disp.ids()) != 0 {
		t.Fatalf("denied move dispatched updates")
	}
}

func TestMemberCannotDelete(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	if _, err := f.engine.Delete(context.Background(), "B"); clierr.CodeOf(err) != clierr.PermissionDenied {
		t.Fatalf("expected %s, got %v", clierr.PermissionDenied, err)
	}
	if _, ok := f.svc.Task("B"); !ok {
		t.Fatalf("task deleted despite denial")
	}
}

func TestDeleteCompactsColumn(t *testing.T) {
	f := newFixture(t, access.Admin{}, threeTodo()...)

	changed, err := f.engine.Delete(context.Background(), "A")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.svc.Task("A"); ok {
		t.Fatalf("task still stored")
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"B", "C"}) {
		t.Fatalf("todo = %v", got)
	}
	if got := f.positions(task.StatusTodo); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("positions = %v", got)
	}
	if len(changed) != 2 || !slices.Equal(f.disp.ids(), []string{"B", "C"}) {
		t.Fatalf("expected B and C to shift, dispatched %v", f.disp.ids())
	}

	if _, err := f.engine.Delete(context.Background(), "A"); clierr.CodeOf(err) != clierr.TaskNotFound {
		t.Fatalf("expected %s, got %v", clierr.TaskNotFound, err)
	}
}

func TestCreateAppendsToColumn(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)

	created, err := f.engine.Create(context.Background(), &task.Task{Title: "D"})
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != task.StatusTodo || created.Position != 3 {
		t.Fatalf("created at %s/%d", created.Status, created.Position)
	}
	if _, ok := f.svc.Task(created.ID); !ok {
		t.Fatalf("task not stored")
	}
	if got := f.positions(task.StatusTodo); !slices.Equal(got, []int{0, 1, 2, 3}) {
		t.Fatalf("positions = %v", got)
	}
	if len(f.disp.ids()) != 0 {
		t.Fatalf("create dispatched %v", f.disp.ids())
	}

	if _, err := f.engine.Create(context.Background(), &task.Task{Title: "x", Status: "blocked"}); clierr.CodeOf(err) != clierr.InvalidStatus {
		t.Fatalf("expected %s, got %v", clierr.InvalidStatus, err)
	}
}

func TestEditMirrorsContent(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	title := "renamed"
	prio := task.PriorityHigh

	updated, err := f.engine.Edit(context.Background(), "B", store.Patch{Title: &title, Priority: &prio})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != title || updated.Priority != prio || updated.Position != 1 {
		t.Fatalf("local copy = %+v", updated)
	}
	if stored, _ := f.svc.Task("B"); stored.Title != title {
		t.Fatalf("stored title = %q", stored.Title)
	}
	if local, _ := f.snap.Get("B"); local.Version != 1 {
		t.Fatalf("edit must not touch the local ordering version, got %d", local.Version)
	}

	pos := 0
	if _, err := f.engine.Edit(context.Background(), "B", store.Patch{Position: &pos}); clierr.CodeOf(err) != clierr.InvalidInput {
		t.Fatalf("ordering edit accepted: %v", err)
	}
	if _, err := f.engine.Edit(context.Background(), "B", store.Patch{}); clierr.CodeOf(err) != clierr.NoChanges {
		t.Fatalf("empty edit accepted: %v", err)
	}
}

func TestCompactRepairsGaps(t *testing.T) {
	tasks := []*task.Task{
		newTask("x", task.StatusTodo, 4),
		newTask("y", task.StatusTodo, 9),
		newTask("z", task.StatusTodo, 4),
	}
	tasks[2].Created = tasks[0].Created.Add(-time.Minute)
	f := newFixture(t, access.Member{}, tasks...)

	if err := CheckInvariant(f.snap.Snapshot()); err == nil {
		t.Fatalf("expected the fixture to violate the invariant")
	}
	if _, err := f.engine.CompactAll(); err != nil {
		t.Fatal(err)
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"z", "x", "y"}) {
		t.Fatalf("todo = %v", got)
	}
	if err := CheckInvariant(f.snap.Snapshot()); err != nil {
		t.Fatal(err)
	}
}

func TestFailedMoveStaysFlaggedUntilCompacted(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tasks := threeTodo()
	snap := snapshot.New("ws", tasks)
	svc := storetest.NewMemory(tasks...)
	svc.FailUpdates("A", 100)

	d := dispatch.New(svc, snap, dispatch.Options{
		MaxAttempts:  2,
		RetryInitial: time.Millisecond,
		RetryMax:     time.Millisecond,
		Logger:       logger,
	})
	d.Start()
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	engine := NewEngine(snap, svc, d, WithRole(access.Member{}), WithLogger(logger))

	flush := func() {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}

	if _, err := engine.MoveTask(task.StatusTodo, 0, 2); err != nil {
		t.Fatal(err)
	}
	flush()

	// B and C were written, A was not: the store holds A0 B0 C1.
	if err := CheckInvariant(snap.Snapshot()); err == nil {
		t.Fatalf("expected the resynced column to be broken")
	}
	if !snap.IsDirty("A") {
		t.Fatalf("dirty = %v, want A flagged", snap.Dirty())
	}

	svc.FailUpdates("A", 0)
	if _, err := engine.CompactAll(); err != nil {
		t.Fatal(err)
	}
	flush()

	if err := CheckInvariant(snap.Snapshot()); err != nil {
		t.Fatalf("local: %v", err)
	}
	if len(snap.Dirty()) != 0 {
		t.Fatalf("dirty = %v after compaction", snap.Dirty())
	}
	stored, err := svc.ListTasks(context.Background(), "ws")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckInvariant(stored); err != nil {
		t.Fatalf("store: %v", err)
	}
}

func TestMoveRejectsShiftedTask(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	before := f.snap.Version()

	_, err := f.engine.Move(MoveRequest{From: task.StatusTodo, FromIndex: 0, To: task.StatusTodo, ToIndex: 2, TaskID: "B"})
	if clierr.CodeOf(err) != clierr.Conflict {
		t.Fatalf("err = %v, want %s", err, clierr.Conflict)
	}
	if f.snap.Version() != before || len(f.disp.ids()) != 0 {
		t.Fatalf("rejected move changed the board")
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("todo = %v", got)
	}

	if _, err := f.engine.Move(MoveRequest{From: task.StatusTodo, FromIndex: 1, To: task.StatusTodo, ToIndex: 2, TaskID: "B"}); err != nil {
		t.Fatal(err)
	}
	if got := f.column(task.StatusTodo); !slices.Equal(got, []string{"A", "C", "B"}) {
		t.Fatalf("todo = %v", got)
	}
}

func TestCompactRewritesDirtyTasksInPlace(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	f.snap.MarkDirty("B")

	changed, err := f.engine.Compact(task.StatusTodo)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0].ID != "B" || changed[0].Position != 1 {
		t.Fatalf("changed = %+v", changed)
	}
	if got := f.disp.ids(); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("dispatched %v", got)
	}
	if f.snap.IsDirty("B") {
		t.Fatalf("flag kept after compaction")
	}
}
