package cmd

import (
	"context"
	"fmt"
	"testing"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/store/filestore"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

const (
	idA = "aaaa1111-0000-4000-8000-000000000001"
	idB = "aaaa2222-0000-4000-8000-000000000002"
	idC = "cccc3333-0000-4000-8000-000000000003"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	cfg, err := config.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := newSession(context.Background(), cfg, sessionOptions{logLevel: "error"})
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	for _, id := range []string{idA, idB, idC} {
		if _, err := s.engine.Create(context.Background(), &task.Task{ID: id, Title: "task " + id[:4]}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	return s
}

func TestLookup(t *testing.T) {
	s := newTestSession(t)
	defer s.close()

	tests := []struct {
		input string
		want  string
		code  string
	}{
		{input: idB, want: idB},
		{input: "aaaa1", want: idA},
		{input: "cccc", want: idC},
		{input: "aaaa", code: clierr.InvalidTaskID},
		{input: "aa", code: clierr.TaskNotFound},
		{input: "dddd4444-0000-4000-8000-000000000004", code: clierr.TaskNotFound},
	}
	for _, tt := range tests {
		got, err := s.lookup(tt.input)
		if tt.code != "" {
			if clierr.CodeOf(err) != tt.code {
				t.Errorf("lookup(%q) error = %v, want code %s", tt.input, err, tt.code)
			}
			continue
		}
		if err != nil {
			t.Fatalf("lookup(%q): %v", tt.input, err)
		}
		if got.ID != tt.want {
			t.Errorf("lookup(%q) = %s, want %s", tt.input, got.ID, tt.want)
		}
	}
}

func TestCloseFlushesMoves(t *testing.T) {
	s := newTestSession(t)

	if _, err := s.engine.MoveTask(task.StatusTodo, 2, 0); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fs := filestore.New(s.cfg.TasksPath(), s.cfg.LockPath())
	tasks, err := fs.ListTasks(context.Background(), s.cfg.Workspace)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	got := board.GroupByStatus(tasks, board.SortByPosition)[task.StatusTodo]
	want := []string{idC, idA, idB}
	if len(got) != len(want) {
		t.Fatalf("todo has %d tasks, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id || got[i].Position != i {
			t.Errorf("todo[%d] = %s at %d, want %s at %d", i, got[i].ID, got[i].Position, id, i)
		}
	}
}

func TestToCLIError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("get: %w", store.ErrNotFound), clierr.TaskNotFound},
		{fmt.Errorf("patch: %w", store.ErrStaleWrite), clierr.StaleWrite},
		{store.ErrConflict, clierr.Conflict},
		{fmt.Errorf("%w: bad", store.ErrValidation), clierr.InvalidInput},
		{config.ErrNotFound, clierr.BoardNotFound},
		{clierr.New(clierr.NoChanges, "nothing"), clierr.NoChanges},
		{fmt.Errorf("boom"), clierr.InternalError},
	}
	for _, tt := range tests {
		if got := toCLIError(tt.err).Code; got != tt.code {
			t.Errorf("toCLIError(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}

	rangeErr := toCLIError(&board.OutOfRangeError{Column: task.StatusDone, Field: "to", Index: 5, Max: 2})
	if rangeErr.Code != clierr.OutOfRangeIndex {
		t.Fatalf("code = %s, want %s", rangeErr.Code, clierr.OutOfRangeIndex)
	}
	if rangeErr.Details["max"] != 2 {
		t.Errorf("details = %v, want max 2", rangeErr.Details)
	}
}
