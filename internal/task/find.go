package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
)

// uuidLen is the length of a canonical textual UUID.
const uuidLen = 36

// NewID returns a fresh opaque task identifier.
func NewID() string {
	return uuid.NewString()
}

// WorkspaceDir returns the directory holding one workspace's task files.
func WorkspaceDir(tasksDir, workspaceID string) string {
	return filepath.Join(tasksDir, workspaceID)
}

// FindByID scans every workspace directory below tasksDir for the task file
// with the given ID. Returns the full path to the task file.
func FindByID(tasksDir, id string) (string, error) {
	workspaces, err := os.ReadDir(tasksDir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading tasks directory: %w", err)
	}

	for _, ws := range workspaces {
		if !ws.IsDir() {
			continue
		}
		if path, ok := findInDir(filepath.Join(tasksDir, ws.Name()), id); ok {
			return path, nil
		}
	}

	return "", NotFound(id)
}

// NotFound returns the CLI error for a missing task.
func NotFound(id string) *clierr.Error {
	return clierr.Newf(clierr.TaskNotFound, "task not found: %s", id).
		WithDetails(map[string]any{"id": id})
}

func findInDir(dir, id string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		if got, err := ExtractIDFromFilename(name); err == nil && got == id {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}

// ReadWarning describes a file that could not be parsed during lenient reading.
type ReadWarning struct {
	File string // base filename
	Err  error
}

// ReadWorkspace reads all task files of one workspace, skipping malformed
// files instead of aborting. Successfully parsed tasks are returned along
// with warnings for files that failed.
func ReadWorkspace(tasksDir, workspaceID string) ([]*Task, []ReadWarning, error) {
	dir := WorkspaceDir(tasksDir, workspaceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading workspace directory: %w", err)
	}

	var tasks []*Task
	var warnings []ReadWarning
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}

		t, readErr := Read(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			warnings = append(warnings, ReadWarning{File: entry.Name(), Err: readErr})
			continue
		}
		if t.WorkspaceID == "" {
			t.WorkspaceID = workspaceID
		}
		tasks = append(tasks, t)
	}

	return tasks, warnings, nil
}

// ExtractIDFromFilename extracts the task ID prefix of a task filename.
func ExtractIDFromFilename(filename string) (string, error) {
	if len(filename) < uuidLen {
		return "", fmt.Errorf("cannot extract ID from filename %q", filename)
	}
	id, err := uuid.Parse(filename[:uuidLen])
	if err != nil {
		return "", fmt.Errorf("cannot extract ID from filename %q: %w", filename, err)
	}
	return id.String(), nil
}
