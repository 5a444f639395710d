// Package filestore implements store.Service over markdown task files laid
// out as <tasks dir>/<workspace>/<id>-<slug>.md.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/filelock"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

const dirMode = 0o750

// Store is a file-backed task service. Mutations hold an advisory lock so
// several processes can share a board directory.
type Store struct {
	tasksDir string
	lockPath string
	logger   log.FieldLogger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped files.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store rooted at tasksDir, locking lockPath around writes.
func New(tasksDir, lockPath string, opts ...Option) *Store {
	s := &Store{
		tasksDir: tasksDir,
		lockPath: lockPath,
		logger:   log.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTasks reads every task file of a workspace. Unparseable files are
// logged and skipped.
func (s *Store) ListTasks(ctx context.Context, workspaceID string) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkWorkspace(workspaceID); err != nil {
		return nil, err
	}
	tasks, warnings, err := task.ReadWorkspace(s.tasksDir, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.WithError(w.Err).WithField("file", w.File).Warn("skipping malformed task file")
	}
	return tasks, nil
}

// GetTask reads a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, _, err := s.read(id)
	return t, err
}

// CreateTask writes a new task file.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := t.Clone()
	if err := store.PrepareCreate(created, s.now()); err != nil {
		return nil, err
	}
	if err := checkWorkspace(created.WorkspaceID); err != nil {
		return nil, err
	}

	err := filelock.With(s.lockPath, func() error {
		if _, err := task.FindByID(s.tasksDir, created.ID); err == nil {
			return fmt.Errorf("%w: task %s already exists", store.ErrConflict, created.ID)
		}
		dir := task.WorkspaceDir(s.tasksDir, created.WorkspaceID)
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("creating workspace directory: %w", err)
		}
		created.File = filepath.Join(dir, task.GenerateFilename(created.ID, task.GenerateSlug(created.Title)))
		return task.Write(created.File, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateTask applies p to the stored task. A title change renames the file.
func (s *Store) UpdateTask(ctx context.Context, id string, p store.Patch) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated *task.Task
	err := filelock.With(s.lockPath, func() error {
		t, path, err := s.read(id)
		if err != nil {
			return err
		}
		oldTitle := t.Title
		if err := store.Apply(t, p, s.now()); err != nil {
			return err
		}

		newPath := path
		if t.Title != oldTitle {
			newPath = filepath.Join(filepath.Dir(path), task.GenerateFilename(t.ID, task.GenerateSlug(t.Title)))
		}
		if err := task.Write(newPath, t); err != nil {
			return err
		}
		if newPath != path {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing old task file: %w", err)
			}
		}
		t.File = newPath
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task file.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return filelock.With(s.lockPath, func() error {
		path, err := s.find(id)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("deleting task file: %w", err)
		}
		return nil
	})
}

func (s *Store) find(id string) (string, error) {
	path, err := task.FindByID(s.tasksDir, id)
	if err != nil {
		if clierr.CodeOf(err) == clierr.TaskNotFound {
			return "", fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return "", err
	}
	return path, nil
}

func (s *Store) read(id string) (*task.Task, string, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, "", err
	}
	t, err := task.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, "", err
	}
	if t.WorkspaceID == "" {
		t.WorkspaceID = filepath.Base(filepath.Dir(path))
	}
	return t, path, nil
}

func checkWorkspace(workspaceID string) error {
	if workspaceID == "" || strings.ContainsAny(workspaceID, `/\`) || workspaceID == "." || workspaceID == ".." {
		return fmt.Errorf("%w: invalid workspace %q", store.ErrValidation, workspaceID)
	}
	return nil
}
