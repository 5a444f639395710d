package httpapi

import (
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

// TasksResponse is the body of a task listing.
type TasksResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

// CreateRequest is the body of a task creation. New tasks always go to the
// end of their column; a Position other than that end is rejected with
// CONFLICT, since the sender's view of the column is stale.
type CreateRequest struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      task.Status   `json:"status,omitempty"`
	Priority    task.Priority `json:"priority,omitempty"`
	Position    *int          `json:"position,omitempty"`
	AssignedTo  []string      `json:"assignedTo,omitempty"`
	Due         *date.Date    `json:"dueDate,omitempty"`
	Version     int64         `json:"version,omitempty"`
}

func roleOf(c echo.Context) (access.Role, error) {
	return access.Parse(c.Request().Header.Get(RoleHeader))
}

func listTasks(svc store.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		sortKey, err := board.ParseSortKey(c.QueryParam("sort"))
		if err != nil {
			return err
		}
		opts := board.FilterOptions{
			Search:   c.QueryParam("search"),
			Assignee: c.QueryParam("assignee"),
		}
		if raw := c.QueryParam("status"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				status, err := task.ParseStatus(s)
				if err != nil {
					return err
				}
				opts.Statuses = append(opts.Statuses, status)
			}
		}

		tasks, err := svc.ListTasks(c.Request().Context(), c.Param("workspace"))
		if err != nil {
			return err
		}
		tasks = board.GroupByStatus(board.Select(tasks, opts), sortKey).Flatten()
		if tasks == nil {
			tasks = []*task.Task{}
		}
		return c.JSON(http.StatusOK, TasksResponse{Tasks: tasks})
	}
}

// workspaceLocks serializes task creation per workspace, so the end of a
// column is read and claimed by one request at a time.
type workspaceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (w *workspaceLocks) lock(workspace string) (unlock func()) {
	w.mu.Lock()
	if w.locks == nil {
		w.locks = make(map[string]*sync.Mutex)
	}
	l, ok := w.locks[workspace]
	if !ok {
		l = &sync.Mutex{}
		w.locks[workspace] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func createTask(svc store.Service, creates *workspaceLocks) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, err := roleOf(c)
		if err != nil {
			return err
		}
		if !access.CanCreate(role) {
			return access.Denied(role, "create")
		}
		var req CreateRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}

		t := &task.Task{
			ID:          req.ID,
			WorkspaceID: c.Param("workspace"),
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			AssignedTo:  req.AssignedTo,
			Due:         req.Due,
			Version:     req.Version,
		}
		if t.ID != "" {
			if t.ID, err = task.ParseID(t.ID); err != nil {
				return err
			}
		}
		if t.Status == "" {
			t.Status = task.StatusTodo
		}

		ctx := c.Request().Context()
		unlock := creates.lock(t.WorkspaceID)
		defer unlock()

		existing, err := svc.ListTasks(ctx, t.WorkspaceID)
		if err != nil {
			return err
		}
		t.Position = len(board.GroupByStatus(existing, board.SortByPosition)[t.Status])
		if req.Position != nil && *req.Position != t.Position {
			return clierr.Newf(clierr.Conflict,
				"position %d is not the end of %s (%d); the board changed, refresh and retry",
				*req.Position, t.Status, t.Position)
		}

		created, err := svc.CreateTask(ctx, t)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func getTask(svc store.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := svc.GetTask(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func patchTask(svc store.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, err := roleOf(c)
		if err != nil {
			return err
		}
		var p store.Patch
		if err := decodeBody(c, &p); err != nil {
			return err
		}
		if p.Ordering() && !access.CanReorder(role) {
			return access.Denied(role, "reorder")
		}
		if !access.CanEdit(role) {
			return access.Denied(role, "edit")
		}

		t, err := svc.UpdateTask(c.Request().Context(), c.Param("id"), p)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc store.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, err := roleOf(c)
		if err != nil {
			return err
		}
		if !access.CanDelete(role) {
			return access.Denied(role, "delete")
		}
		if err := svc.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}
