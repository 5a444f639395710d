package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// TaskCompact renders a list of tasks in one-line-per-record compact format.
func TaskCompact(w io.Writer, tasks []*task.Task, outOfSync []string) {
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks found.")
		return
	}
	for _, t := range tasks {
		fmt.Fprintln(w, formatTaskLine(t, slices.Contains(outOfSync, t.ID)))
	}
}

// ColumnsCompact renders the board with one line per column header and task.
func ColumnsCompact(w io.Writer, cols board.Columns, outOfSync []string) {
	for _, s := range task.Statuses() {
		fmt.Fprintf(w, "%s: %d\n", s, len(cols[s]))
		for _, t := range cols[s] {
			fmt.Fprintln(w, "  "+formatTaskLine(t, slices.Contains(outOfSync, t.ID)))
		}
	}
}

// TaskDetailCompact renders a single task with detail in compact format.
func TaskDetailCompact(w io.Writer, t *task.Task, outOfSync bool) {
	fmt.Fprintln(w, formatTaskLine(t, outOfSync))

	ts := "  created:" + t.Created.Format("2006-01-02") +
		" updated:" + t.Updated.Format("2006-01-02") +
		" version:" + strconv.FormatInt(t.Version, 10)
	if t.Started != nil {
		ts += " started:" + t.Started.Format("2006-01-02")
	}
	if t.Completed != nil {
		ts += " completed:" + t.Completed.Format("2006-01-02")
	}
	fmt.Fprintln(w, ts)

	if t.Description != "" {
		for _, line := range strings.Split(t.Description, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
}

// OverviewCompact renders a board summary in compact format.
func OverviewCompact(w io.Writer, s board.Overview) {
	fmt.Fprintf(w, "%s/%s (%d tasks)\n", s.BoardName, s.Workspace, s.TotalTasks)

	for _, ss := range s.Statuses {
		line := "  " + string(ss.Status) + ": " + strconv.Itoa(ss.Count)
		var annotations []string
		if ss.Overdue > 0 {
			annotations = append(annotations, strconv.Itoa(ss.Overdue)+" overdue")
		}
		if ss.OutOfSync > 0 {
			annotations = append(annotations, strconv.Itoa(ss.OutOfSync)+" out of sync")
		}
		if len(annotations) > 0 {
			line += " (" + strings.Join(annotations, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}

	if len(s.Priorities) > 0 {
		parts := make([]string, 0, len(s.Priorities))
		for _, pc := range s.Priorities {
			parts = append(parts, string(pc.Priority)+"="+strconv.Itoa(pc.Count))
		}
		fmt.Fprintln(w, "Priority: "+strings.Join(parts, " "))
	}
}

// ViolationsCompact renders invariant violations one per line.
func ViolationsCompact(w io.Writer, violations []board.Violation) {
	for _, v := range violations {
		fmt.Fprintln(w, v.String())
	}
}

// formatTaskLine builds the one-line representation of a task.
func formatTaskLine(t *task.Task, outOfSync bool) string {
	line := ShortID(t.ID) + " [" + string(t.Status) + "#" + strconv.Itoa(t.Position) + "/" + string(t.Priority) + "] " + t.Title

	if len(t.AssignedTo) > 0 {
		line += " @" + strings.Join(t.AssignedTo, " @")
	}
	if t.Due != nil {
		line += " due:" + t.Due.String()
	}
	if outOfSync {
		line += " !out-of-sync"
	}
	return line
}
