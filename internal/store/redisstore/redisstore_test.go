package redisstore

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return New(rc, "test"), m
}

func TestCreateListUpdate(t *testing.T) {
	s, m := newStore(t)
	ctx := context.Background()

	a, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "a", Position: 0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "b", Position: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "other", Title: "c"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	members, err := m.Members("test:ws:ws:tasks")
	if err != nil || len(members) != 2 {
		t.Fatalf("unexpected workspace set: %v %v", members, err)
	}

	tasks, err := s.ListTasks(ctx, "ws")
	if err != nil || len(tasks) != 2 {
		t.Fatalf("list: %v %d", err, len(tasks))
	}

	moved, err := s.UpdateTask(ctx, a.ID, store.PositionPatch(1, task.StatusInProgress, 42))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if moved.Version != 42 || moved.Status != task.StatusInProgress || moved.Started == nil {
		t.Fatalf("unexpected task %+v", moved)
	}

	got, err := s.GetTask(ctx, a.ID)
	if err != nil || got.Version != 42 {
		t.Fatalf("get: %v %+v", err, got)
	}
}

func TestUpdateStaleAndMissing(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateTask(ctx, a.ID, store.PositionPatch(0, task.StatusTodo, 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateTask(ctx, a.ID, store.PositionPatch(3, task.StatusTodo, 99)); !errors.Is(err, store.ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}
	if _, err := s.UpdateTask(ctx, "missing", store.PositionPatch(0, task.StatusTodo, 1)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesMembership(t *testing.T) {
	s, m := newStore(t)
	ctx := context.Background()

	a, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.Exists("test:task:" + a.ID) {
		t.Fatalf("task blob still present")
	}
	if _, err := s.GetTask(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	tasks, err := s.ListTasks(ctx, "ws")
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected empty workspace, got %d %v", len(tasks), err)
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.CreateTask(ctx, &task.Task{WorkspaceID: "ws", Title: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTask(ctx, &task.Task{ID: a.ID, WorkspaceID: "ws", Title: "dup"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
