// Package task defines the task entity and its on-disk markdown representation.
package task

import (
	"slices"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/date"
)

// Status names the column a task belongs to.
type Status string

// Board columns, in display order.
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses returns the board columns in display order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

// Valid reports whether s is one of the board columns.
func (s Status) Valid() bool {
	return s.Index() >= 0
}

// Index returns the column index of s, or -1.
func (s Status) Index() int {
	return slices.Index(Statuses(), s)
}

// Priority ranks a task within the list view.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultPriority is assigned to tasks created without one.
const DefaultPriority = PriorityMedium

// Priorities returns the priorities from highest to lowest.
func Priorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities for sorting: high is 0, medium 1, low 2.
// Unknown priorities rank -1.
func (p Priority) Rank() int {
	return slices.Index(Priorities(), p)
}

// Task is a single work item on a workspace board.
type Task struct {
	ID          string     `yaml:"id" json:"id"`
	WorkspaceID string     `yaml:"workspace" json:"workspaceId"`
	Title       string     `yaml:"title" json:"title"`
	Status      Status     `yaml:"status" json:"status"`
	Priority    Priority   `yaml:"priority" json:"priority"`
	Position    int        `yaml:"position" json:"position"`
	AssignedTo  []string   `yaml:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	Due         *date.Date `yaml:"due,omitempty" json:"dueDate,omitempty"`
	Version     int64      `yaml:"version" json:"version"`
	Created     time.Time  `yaml:"created" json:"created"`
	Updated     time.Time  `yaml:"updated" json:"updated"`
	Started     *time.Time `yaml:"started,omitempty" json:"started,omitempty"`
	Completed   *time.Time `yaml:"completed,omitempty" json:"completed,omitempty"`

	// Description is the markdown body below the frontmatter.
	Description string `yaml:"-" json:"description,omitempty"`

	// File is the path of the backing task file, if any.
	File string `yaml:"-" json:"-"`
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.AssignedTo = slices.Clone(t.AssignedTo)
	c.Due = date.Clone(t.Due)
	c.Started = cloneTime(t.Started)
	c.Completed = cloneTime(t.Completed)
	return &c
}

// CloneAll deep-copies a task slice.
func CloneAll(tasks []*Task) []*Task {
	out := make([]*Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// NormalizeAssignees sorts and deduplicates user ids, dropping empty ones.
// AssignedTo is a set; this is its canonical form.
func NormalizeAssignees(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
