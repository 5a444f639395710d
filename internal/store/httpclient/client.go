// Package httpclient implements store.Service against the taskorder HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/httpapi"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

const defaultTimeout = 15 * time.Second

// Client talks to a remote taskorder server.
type Client struct {
	baseURL string
	role    string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithRole sends role with every request.
func WithRole(role string) Option {
	return func(c *Client) { c.role = role }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, clierr.Newf(clierr.InvalidInput, "invalid API URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListTasks implements store.Service.
func (c *Client) ListTasks(ctx context.Context, workspaceID string) ([]*task.Task, error) {
	var resp httpapi.TasksResponse
	if err := c.do(ctx, http.MethodGet, workspacePath(workspaceID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask implements store.Service.
func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask implements store.Service.
func (c *Client) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	pos := t.Position
	req := httpapi.CreateRequest{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Position:    &pos,
		AssignedTo:  t.AssignedTo,
		Due:         t.Due,
		Version:     t.Version,
	}
	var created task.Task
	if err := c.do(ctx, http.MethodPost, workspacePath(t.WorkspaceID), req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask implements store.Service.
func (c *Client) UpdateTask(ctx context.Context, id string, p store.Patch) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id), p, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask implements store.Service.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

func workspacePath(workspaceID string) string {
	return "/api/workspaces/" + url.PathEscape(workspaceID) + "/tasks"
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.role != "" {
		req.Header.Set(httpapi.RoleHeader, c.role)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// responseError maps an API error response onto the store sentinels. Other
// statuses are returned as plain errors, which callers treat as transient.
func responseError(status int, data []byte) error {
	var body httpapi.ErrorBody
	if err := sonic.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", store.ErrNotFound, body.Error)
	case status == http.StatusConflict && body.Code == clierr.Conflict:
		return fmt.Errorf("%w: %s", store.ErrConflict, body.Error)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", store.ErrStaleWrite, body.Error)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", store.ErrValidation, body.Error)
	case status == http.StatusBadRequest, status == http.StatusForbidden:
		code := body.Code
		if code == "" {
			code = clierr.InvalidInput
		}
		if status == http.StatusBadRequest {
			return fmt.Errorf("%w: %w", store.ErrValidation, clierr.New(code, body.Error))
		}
		return clierr.New(code, body.Error)
	default:
		return fmt.Errorf("server returned %d: %s", status, body.Error)
	}
}
