package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	tasksDir := filepath.Join(dir, "tasks")
	return New(tasksDir, filepath.Join(dir, ".lock")), tasksDir
}

func TestCreateListGet(t *testing.T) {
	s, tasksDir := newStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "Write release notes", Description: "draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Dir(created.File) != filepath.Join(tasksDir, "ws") {
		t.Fatalf("unexpected file location %s", created.File)
	}
	if !strings.HasSuffix(created.File, "-write-release-notes.md") {
		t.Fatalf("unexpected filename %s", created.File)
	}

	tasks, err := s.ListTasks(ctx, "ws")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list: %v %d", err, len(tasks))
	}

	got, err := s.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "draft" || got.Version != 1 {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestUpdateRenamesAndRejectsStale(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "old name"})
	if err != nil {
		t.Fatal(err)
	}

	title := "new name"
	updated, err := s.UpdateTask(ctx, created.ID, store.Patch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := os.Stat(created.File); !os.IsNotExist(err) {
		t.Fatalf("old file still present")
	}
	if !strings.HasSuffix(updated.File, "-new-name.md") {
		t.Fatalf("file not renamed: %s", updated.File)
	}

	moved, err := s.UpdateTask(ctx, created.ID, store.PositionPatch(3, task.StatusDone, 100))
	if err != nil {
		t.Fatalf("ordering update: %v", err)
	}
	if moved.Version != 100 || moved.Status != task.StatusDone {
		t.Fatalf("unexpected task %+v", moved)
	}

	_, err = s.UpdateTask(ctx, created.ID, store.PositionPatch(0, task.StatusTodo, 50))
	if !errors.Is(err, store.ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "temp"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTask(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTask(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRejectsBadWorkspace(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateTask(context.Background(), &task.Task{WorkspaceID: "../escape", Title: "x"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
