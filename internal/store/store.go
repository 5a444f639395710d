// Package store defines the task service contract the board core talks to
// and the patch rules every backend enforces.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Sentinel errors returned by every Service implementation.
var (
	ErrNotFound   = errors.New("task not found")
	ErrStaleWrite = errors.New("stale write")
	ErrValidation = errors.New("invalid task update")
	ErrConflict   = errors.New("concurrent modification")
)

// Service is the backing task store.
type Service interface {
	ListTasks(ctx context.Context, workspaceID string) ([]*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) (*task.Task, error)
	UpdateTask(ctx context.Context, id string, p Patch) (*task.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Patch is a partial task update. Nil fields are left unchanged.
type Patch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Priority    *task.Priority `json:"priority,omitempty"`
	Status      *task.Status   `json:"status,omitempty"`
	Position    *int           `json:"position,omitempty"`
	AssignedTo  *[]string      `json:"assignedTo,omitempty"`
	Due         *date.Date     `json:"dueDate,omitempty"`
	ClearDue    bool           `json:"clearDue,omitempty"`

	// Version is the writer's version of the task after this patch. Zero
	// means unversioned, which only content edits may use.
	Version int64 `json:"version,omitempty"`
}

// Ordering reports whether p changes a task's column or position.
func (p Patch) Ordering() bool {
	return p.Position != nil || p.Status != nil
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.Position == nil && p.AssignedTo == nil && p.Due == nil && !p.ClearDue
}

// PositionPatch builds the ordering patch the dispatcher sends.
func PositionPatch(position int, status task.Status, version int64) Patch {
	return Patch{Position: &position, Status: &status, Version: version}
}

// Apply validates p against t and applies it in place.
func Apply(t *task.Task, p Patch, now time.Time) error {
	if p.Version != 0 && p.Version <= t.Version {
		return fmt.Errorf("%w: task %s is at version %d, update carries %d", ErrStaleWrite, t.ID, t.Version, p.Version)
	}
	if p.Ordering() && p.Version == 0 {
		return fmt.Errorf("%w: position and status updates must carry a version", ErrValidation)
	}
	if p.Due != nil && p.ClearDue {
		return fmt.Errorf("%w: due date cannot be set and cleared at once", ErrValidation)
	}

	next := t.Clone()
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.Position != nil {
		next.Position = *p.Position
	}
	if p.AssignedTo != nil {
		next.AssignedTo = task.NormalizeAssignees(*p.AssignedTo)
	}
	if p.Due != nil {
		next.Due = date.Clone(p.Due)
	}
	if p.ClearDue {
		next.Due = nil
	}
	if p.Status != nil && *p.Status != t.Status {
		next.Status = *p.Status
		task.UpdateTimestamps(next, t.Status, next.Status, now)
	}
	if err := task.Validate(next); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	next.Version = max(p.Version, t.Version+1)
	next.Updated = now
	*t = *next
	return nil
}

// PrepareCreate fills defaults for a new task and validates it.
func PrepareCreate(t *task.Task, now time.Time) error {
	if t.ID == "" {
		t.ID = task.NewID()
	}
	if t.Priority == "" {
		t.Priority = task.DefaultPriority
	}
	if t.Status == "" {
		t.Status = task.StatusTodo
	}
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Updated.IsZero() {
		t.Updated = now
	}
	if t.Version == 0 {
		t.Version = 1
	}
	t.AssignedTo = task.NormalizeAssignees(t.AssignedTo)
	if err := task.Validate(t); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
