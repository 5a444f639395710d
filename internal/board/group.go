package board

import (
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Columns maps each status to its ordered tasks.
type Columns map[task.Status][]*task.Task

// GroupByStatus partitions tasks into columns sorted by key. The result
// always holds every status with a non-nil slice. Tasks with an unknown
// status are dropped and the input slice is left untouched.
func GroupByStatus(tasks []*task.Task, key SortKey) Columns {
	cols := make(Columns, len(task.Statuses()))
	for _, s := range task.Statuses() {
		cols[s] = []*task.Task{}
	}
	for _, t := range tasks {
		if col, ok := cols[t.Status]; ok {
			cols[t.Status] = append(col, t)
		}
	}
	for _, col := range cols {
		SortTasks(col, key)
	}
	return cols
}

// Flatten returns the tasks of all columns in board order.
func (c Columns) Flatten() []*task.Task {
	var out []*task.Task
	for _, s := range task.Statuses() {
		out = append(out, c[s]...)
	}
	return out
}

// Counts returns the number of tasks per status.
func (c Columns) Counts() map[task.Status]int {
	counts := make(map[task.Status]int, len(c))
	for s, col := range c {
		counts[s] = len(col)
	}
	return counts
}
