package board

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Violation describes one column whose positions are not exactly 0..n-1.
type Violation struct {
	Workspace string      `json:"workspace"`
	Status    task.Status `json:"status"`
	Positions []int       `json:"positions"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s/%s has positions %v, want 0..%d", v.Workspace, v.Status, v.Positions, len(v.Positions)-1)
}

// InvariantError lists every column with broken positions.
type InvariantError struct {
	Violations []Violation
}

func (e *InvariantError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "position invariant violated: " + strings.Join(parts, "; ")
}

// ErrorCode implements clierr.Coder.
func (e *InvariantError) ErrorCode() string { return clierr.InvariantViolation }

type columnKey struct {
	workspace string
	status    task.Status
}

// CheckInvariant verifies that within each (workspace, status) the task
// positions are exactly {0, ..., n-1}. It returns nil or *InvariantError.
func CheckInvariant(tasks []*task.Task) error {
	positions := make(map[columnKey][]int)
	for _, t := range tasks {
		k := columnKey{t.WorkspaceID, t.Status}
		positions[k] = append(positions[k], t.Position)
	}

	var violations []Violation
	for k, ps := range positions {
		slices.Sort(ps)
		for i, p := range ps {
			if p != i {
				violations = append(violations, Violation{Workspace: k.workspace, Status: k.status, Positions: ps})
				break
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	slices.SortFunc(violations, func(a, b Violation) int {
		if c := cmp.Compare(a.Workspace, b.Workspace); c != 0 {
			return c
		}
		return cmp.Compare(a.Status.Index(), b.Status.Index())
	})
	return &InvariantError{Violations: violations}
}
