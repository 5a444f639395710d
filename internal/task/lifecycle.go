package task

import "time"

// UpdateTimestamps sets Started and Completed based on the status transition.
//   - Sets Started on first move out of todo (never overwrites).
//   - Sets Completed on move to done; also sets Started if nil.
//   - Clears Completed when moving away from done (reopening).
func UpdateTimestamps(t *Task, oldStatus, newStatus Status, now time.Time) {
	if oldStatus == newStatus {
		return
	}

	if t.Started == nil && oldStatus == StatusTodo {
		t.Started = &now
	}

	switch {
	case newStatus == StatusDone:
		t.Completed = &now
		if t.Started == nil {
			t.Started = &now
		}
	case oldStatus == StatusDone:
		t.Completed = nil
	}
}
