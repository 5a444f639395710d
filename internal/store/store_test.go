package store

import (
	"errors"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

func base() *task.Task {
	return &task.Task{
		ID:          "t1",
		WorkspaceID: "ws",
		Title:       "write docs",
		Status:      task.StatusTodo,
		Priority:    task.PriorityMedium,
		Position:    2,
		Version:     10,
	}
}

func TestApplyOrderingPatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tk := base()

	if err := Apply(tk, PositionPatch(0, task.StatusDone, 25), now); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tk.Position != 0 || tk.Status != task.StatusDone || tk.Version != 25 {
		t.Fatalf("unexpected task: %+v", tk)
	}
	if tk.Completed == nil || tk.Started == nil || !tk.Updated.Equal(now) {
		t.Fatalf("lifecycle timestamps not set: %+v", tk)
	}
}

func TestApplyRejectsStaleVersion(t *testing.T) {
	tk := base()
	for _, v := range []int64{9, 10} {
		err := Apply(tk, PositionPatch(0, task.StatusTodo, v), time.Now())
		if !errors.Is(err, ErrStaleWrite) {
			t.Fatalf("version %d: expected ErrStaleWrite, got %v", v, err)
		}
	}
	if tk.Position != 2 {
		t.Fatalf("rejected patch mutated the task")
	}
}

func TestApplyRequiresVersionForOrdering(t *testing.T) {
	pos := 1
	err := Apply(base(), Patch{Position: &pos}, time.Now())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestApplyContentEditBumpsVersion(t *testing.T) {
	tk := base()
	title := "write better docs"
	assignees := []string{"u2", "u1", "u2"}
	due := date.New(2026, 4, 1)

	if err := Apply(tk, Patch{Title: &title, AssignedTo: &assignees, Due: &due}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tk.Version != 11 || tk.Title != title || len(tk.AssignedTo) != 2 || tk.Due == nil {
		t.Fatalf("unexpected task: %+v", tk)
	}

	if err := Apply(tk, Patch{ClearDue: true}, time.Now()); err != nil || tk.Due != nil {
		t.Fatalf("clear due failed: %v %+v", err, tk.Due)
	}
}

func TestApplyValidation(t *testing.T) {
	empty := ""
	bad := task.Priority("urgent")
	neg := -1
	cases := map[string]Patch{
		"empty title":       {Title: &empty},
		"unknown priority":  {Priority: &bad},
		"negative position": {Position: &neg, Version: 99},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			if err := Apply(base(), p, time.Now()); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestPrepareCreateDefaults(t *testing.T) {
	tk := &task.Task{WorkspaceID: "ws", Title: "new"}
	if err := PrepareCreate(tk, time.Now()); err != nil {
		t.Fatal(err)
	}
	if tk.ID == "" || tk.Priority != task.DefaultPriority || tk.Status != task.StatusTodo || tk.Version != 1 {
		t.Fatalf("defaults missing: %+v", tk)
	}
	if err := PrepareCreate(&task.Task{WorkspaceID: "ws"}, time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing title, got %v", err)
	}
}
