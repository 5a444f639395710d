// Package board groups, filters and reorders the tasks of a workspace board.
package board

import (
	"slices"
	"strings"
	"sync"

	"github.com/twiced-technology-gmbh/taskorder/internal/snapshot"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// Filter returns the tasks whose title or description contains query,
// ignoring case. An empty query returns tasks itself.
func Filter(tasks []*task.Task, query string) []*task.Task {
	if query == "" {
		return tasks
	}
	q := strings.ToLower(query)
	result := []*task.Task{}
	for _, t := range tasks {
		if matchesSearch(t, q) {
			result = append(result, t)
		}
	}
	return result
}

func matchesSearch(t *task.Task, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(t.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(t.Description), lowerQuery)
}

// FilterOptions narrows a task listing. All set criteria must match.
type FilterOptions struct {
	Statuses   []task.Status
	Priorities []task.Priority
	Assignee   string
	Search     string
}

// Select returns the tasks matching opts, preserving input order.
func Select(tasks []*task.Task, opts FilterOptions) []*task.Task {
	tasks = Filter(tasks, opts.Search)
	var result []*task.Task
	for _, t := range tasks {
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, t.Status) {
			continue
		}
		if len(opts.Priorities) > 0 && !slices.Contains(opts.Priorities, t.Priority) {
			continue
		}
		if opts.Assignee != "" && !slices.Contains(t.AssignedTo, opts.Assignee) {
			continue
		}
		result = append(result, t)
	}
	return result
}

const defaultSearchCacheSize = 64

// Searcher memoizes Filter over a snapshot store. Cached results are keyed
// on the store version and the query, so any committed change invalidates
// them. Returned slices are shared between callers and must not be modified.
type Searcher struct {
	snap  *snapshot.Store
	limit int

	mu      sync.Mutex
	version uint64
	cache   map[string][]*task.Task
	hits    int
}

// NewSearcher returns a Searcher holding at most limit queries per version.
func NewSearcher(snap *snapshot.Store, limit int) *Searcher {
	if limit <= 0 {
		limit = defaultSearchCacheSize
	}
	return &Searcher{snap: snap, limit: limit, cache: make(map[string][]*task.Task)}
}

// Search returns the snapshot tasks matching query, in board order.
func (s *Searcher) Search(query string) []*task.Task {
	s.mu.Lock()
	if s.snap.Version() == s.version {
		if res, ok := s.cache[query]; ok {
			s.hits++
			s.mu.Unlock()
			return res
		}
	}
	s.mu.Unlock()

	tasks, version := s.snap.View()
	res := Filter(tasks, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		if version < s.version {
			return res
		}
		clear(s.cache)
		s.version = version
	}
	if len(s.cache) >= s.limit {
		clear(s.cache)
	}
	s.cache[query] = res
	return res
}

// Hits returns the number of queries answered from the cache.
func (s *Searcher) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}
