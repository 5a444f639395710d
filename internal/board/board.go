package board

import (
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// StatusSummary holds metrics for a single status column.
type StatusSummary struct {
	Status    task.Status `json:"status"`
	Count     int         `json:"count"`
	Overdue   int         `json:"overdue"`
	OutOfSync int         `json:"out_of_sync"`
}

// PriorityCount holds a count for a priority level.
type PriorityCount struct {
	Priority task.Priority `json:"priority"`
	Count    int           `json:"count"`
}

// Overview is the aggregate board overview.
type Overview struct {
	BoardName  string          `json:"board_name"`
	Workspace  string          `json:"workspace"`
	TotalTasks int             `json:"total_tasks"`
	Statuses   []StatusSummary `json:"statuses"`
	Priorities []PriorityCount `json:"priorities"`
	OutOfSync  []string        `json:"out_of_sync,omitempty"`
}

// Summary computes a board overview. dirty lists the ids of tasks whose
// local state has not reached the backing store.
func Summary(boardName, workspace string, tasks []*task.Task, dirty []string, now time.Time) Overview {
	statusMap := make(map[task.Status]*StatusSummary, len(task.Statuses()))
	for _, s := range task.Statuses() {
		statusMap[s] = &StatusSummary{Status: s}
	}
	dirtySet := make(map[string]bool, len(dirty))
	for _, id := range dirty {
		dirtySet[id] = true
	}

	prioMap := make(map[task.Priority]int, len(task.Priorities()))
	for _, t := range tasks {
		if ss, ok := statusMap[t.Status]; ok {
			ss.Count++
			if t.Due != nil && t.Status != task.StatusDone && t.Due.Overdue(now) {
				ss.Overdue++
			}
			if dirtySet[t.ID] {
				ss.OutOfSync++
			}
		}
		prioMap[t.Priority]++
	}

	statuses := make([]StatusSummary, 0, len(task.Statuses()))
	for _, s := range task.Statuses() {
		statuses = append(statuses, *statusMap[s])
	}
	priorities := make([]PriorityCount, 0, len(task.Priorities()))
	for _, p := range task.Priorities() {
		priorities = append(priorities, PriorityCount{Priority: p, Count: prioMap[p]})
	}

	return Overview{
		BoardName:  boardName,
		Workspace:  workspace,
		TotalTasks: len(tasks),
		Statuses:   statuses,
		Priorities: priorities,
		OutOfSync:  dirty,
	}
}
