package board

import (
	"errors"
	"slices"
	"testing"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

func ids(tasks []*task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestGroupByStatusEmpty(t *testing.T) {
	cols := GroupByStatus(nil, SortByPosition)
	if len(cols) != len(task.Statuses()) {
		t.Fatalf("expected %d columns, got %d", len(task.Statuses()), len(cols))
	}
	for _, s := range task.Statuses() {
		if cols[s] == nil || len(cols[s]) != 0 {
			t.Fatalf("column %s = %v, want empty non-nil", s, cols[s])
		}
	}
}

func TestGroupByStatusOrdersColumns(t *testing.T) {
	tasks := []*task.Task{
		newTask("c", task.StatusTodo, 2),
		newTask("d", task.StatusDone, 0),
		newTask("a", task.StatusTodo, 0),
		newTask("b", task.StatusTodo, 1),
		newTask("x", "archived", 0),
	}
	cols := GroupByStatus(tasks, SortByPosition)

	if got := ids(cols[task.StatusTodo]); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("todo = %v", got)
	}
	if got := ids(cols.Flatten()); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("flatten = %v", got)
	}
	if tasks[0].ID != "c" {
		t.Fatalf("input slice was reordered")
	}
	if counts := cols.Counts(); counts[task.StatusInProgress] != 0 || counts[task.StatusTodo] != 3 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestSortByPriorityIsStable(t *testing.T) {
	mk := func(id string, p task.Priority) *task.Task {
		t := newTask(id, task.StatusTodo, 0)
		t.Priority = p
		return t
	}
	tasks := []*task.Task{
		mk("l1", task.PriorityLow),
		mk("m1", task.PriorityMedium),
		mk("h1", task.PriorityHigh),
		mk("m2", task.PriorityMedium),
		mk("h2", task.PriorityHigh),
	}
	SortTasks(tasks, SortByPriority)
	if got := ids(tasks); !slices.Equal(got, []string{"h1", "h2", "m1", "m2", "l1"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestParseSortKey(t *testing.T) {
	if k, err := ParseSortKey(""); err != nil || k != SortByPosition {
		t.Fatalf("empty key = %q, %v", k, err)
	}
	if k, err := ParseSortKey(" Priority "); err != nil || k != SortByPriority {
		t.Fatalf("priority key = %q, %v", k, err)
	}
	if _, err := ParseSortKey("due"); clierr.CodeOf(err) != clierr.InvalidSort {
		t.Fatalf("expected %s, got %v", clierr.InvalidSort, err)
	}
}

func TestFilter(t *testing.T) {
	tasks := threeTodo()
	tasks[1].Description = "Fix the LOGIN page"

	if got := Filter(tasks, ""); len(got) != 3 || &got[0] != &tasks[0] {
		t.Fatalf("empty query must return the input slice")
	}
	if got := ids(Filter(tasks, "login")); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("description match = %v", got)
	}
	if got := ids(Filter(tasks, "TASK c")); !slices.Equal(got, []string{"C"}) {
		t.Fatalf("title match = %v", got)
	}
	if got := Filter(tasks, "nothing"); got == nil || len(got) != 0 {
		t.Fatalf("no match = %v", got)
	}
}

func TestSelect(t *testing.T) {
	tasks := append(threeTodo(), newTask("D", task.StatusDone, 0))
	tasks[0].AssignedTo = []string{"u1"}
	tasks[3].AssignedTo = []string{"u1", "u2"}
	tasks[3].Priority = task.PriorityHigh

	got := Select(tasks, FilterOptions{Assignee: "u1"})
	if !slices.Equal(ids(got), []string{"A", "D"}) {
		t.Fatalf("assignee = %v", ids(got))
	}
	got = Select(tasks, FilterOptions{Assignee: "u1", Statuses: []task.Status{task.StatusDone}})
	if !slices.Equal(ids(got), []string{"D"}) {
		t.Fatalf("assignee+status = %v", ids(got))
	}
	got = Select(tasks, FilterOptions{Priorities: []task.Priority{task.PriorityMedium}, Search: "task b"})
	if !slices.Equal(ids(got), []string{"B"}) {
		t.Fatalf("priority+search = %v", ids(got))
	}
}

func TestSearcherCachesPerVersion(t *testing.T) {
	f := newFixture(t, access.Member{}, threeTodo()...)
	s := NewSearcher(f.snap, 0)

	first := s.Search("task")
	if len(first) != 3 || s.Hits() != 0 {
		t.Fatalf("first search = %d tasks, %d hits", len(first), s.Hits())
	}
	s.Search("task")
	if s.Hits() != 1 {
		t.Fatalf("repeat search missed the cache")
	}

	if _, err := f.engine.MoveTask(task.StatusTodo, 2, 0); err != nil {
		t.Fatal(err)
	}
	after := s.Search("task")
	if s.Hits() != 1 {
		t.Fatalf("search after a move must not hit the cache")
	}
	if got := ids(after); !slices.Equal(got, []string{"C", "A", "B"}) {
		t.Fatalf("search after move = %v", got)
	}
}

func TestSearcherLimit(t *testing.T) {
	s := NewSearcher(snapshot.New("ws", threeTodo()), 2)
	s.Search("a")
	s.Search("b")
	s.Search("c")
	s.Search("c")
	if s.Hits() != 1 {
		t.Fatalf("hits = %d", s.Hits())
	}
	s.Search("a")
	if s.Hits() != 1 {
		t.Fatalf("evicted query answered from cache")
	}
}

func TestCheckInvariant(t *testing.T) {
	if err := CheckInvariant(nil); err != nil {
		t.Fatalf("empty board: %v", err)
	}
	if err := CheckInvariant(threeTodo()); err != nil {
		t.Fatalf("dense column: %v", err)
	}

	tasks := append(threeTodo(), newTask("D", task.StatusDone, 1), newTask("E", task.StatusDone, 1))
	tasks[2].Position = 3
	err := CheckInvariant(tasks)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected *InvariantError, got %v", err)
	}
	if len(inv.Violations) != 2 {
		t.Fatalf("violations = %+v", inv.Violations)
	}
	if v := inv.Violations[0]; v.Status != task.StatusTodo || !slices.Equal(v.Positions, []int{0, 1, 3}) {
		t.Fatalf("first violation = %+v", v)
	}
	if clierr.CodeOf(err) != clierr.InvariantViolation {
		t.Fatalf("code = %s", clierr.CodeOf(err))
	}
}

func TestSummary(t *testing.T) {
	tasks := append(threeTodo(), newTask("D", task.StatusDone, 0))
	past := date.New(2026, 2, 1)
	tasks[0].Due = &past
	tasks[3].Due = &past
	tasks[1].Priority = task.PriorityHigh

	o := Summary("Board", "ws", tasks, []string{"B"}, fixedNow)
	if o.TotalTasks != 4 {
		t.Fatalf("total = %d", o.TotalTasks)
	}
	todo := o.Statuses[0]
	if todo.Status != task.StatusTodo || todo.Count != 3 || todo.Overdue != 1 || todo.OutOfSync != 1 {
		t.Fatalf("todo summary = %+v", todo)
	}
	if done := o.Statuses[2]; done.Overdue != 0 {
		t.Fatalf("done tasks are never overdue: %+v", done)
	}
	if o.Priorities[0].Priority != task.PriorityHigh || o.Priorities[0].Count != 1 {
		t.Fatalf("priorities = %+v", o.Priorities)
	}
}

func TestActivityLog(t *testing.T) {
	dir := t.TempDir()

	if entries, err := ReadLog(dir, 0); err != nil || entries != nil {
		t.Fatalf("missing log = %v, %v", entries, err)
	}
	LogMutation(dir, "create", "ws", "A", "created")
	LogMutation(dir, "move", "ws", "A", "todo[0] -> done[0]")
	LogMutation(dir, "delete", "ws", "A", "")

	entries, err := ReadLog(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != "move" || entries[1].Action != "delete" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Workspace != "ws" || entries[0].TaskID != "A" {
		t.Fatalf("entry fields lost: %+v", entries[0])
	}
}
