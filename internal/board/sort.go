package board

import (
	"cmp"
	"slices"
	"strings"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// SortKey selects the order of tasks within a column.
type SortKey string

// Sort keys. Position is the board order; priority is the list view order.
const (
	SortByPosition SortKey = "position"
	SortByPriority SortKey = "priority"
)

// SortKeys returns the valid sort keys.
func SortKeys() []SortKey {
	return []SortKey{SortByPosition, SortByPriority}
}

// ParseSortKey validates a --sort value. Empty means position.
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if key == "" {
		return SortByPosition, nil
	}
	if !slices.Contains(SortKeys(), key) {
		return "", clierr.Newf(clierr.InvalidSort, "invalid sort key %q", s).
			WithDetails(map[string]any{"sort": s, "allowed": SortKeys()})
	}
	return key, nil
}

// SortTasks sorts tasks in place. Position order breaks ties by id so the
// result is deterministic; priority order is stable, keeping the input order
// of equal priorities.
func SortTasks(tasks []*task.Task, key SortKey) {
	switch key {
	case SortByPriority:
		slices.SortStableFunc(tasks, func(a, b *task.Task) int {
			return cmp.Compare(priorityRank(a.Priority), priorityRank(b.Priority))
		})
	default:
		slices.SortFunc(tasks, comparePosition)
	}
}

func comparePosition(a, b *task.Task) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// priorityRank puts unknown priorities after low.
func priorityRank(p task.Priority) int {
	if r := p.Rank(); r >= 0 {
		return r
	}
	return len(task.Priorities())
}
