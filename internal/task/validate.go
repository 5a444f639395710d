package task

import (
	"strings"

	"github.com/google/uuid"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
)

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", ValidateStatus(s)
	}
	return status, nil
}

// ValidateStatus returns a CLIError for an unknown status.
func ValidateStatus(status string) *clierr.Error {
	return clierr.Newf(clierr.InvalidStatus, "invalid status %q", status).
		WithDetails(map[string]any{
			"status":  status,
			"allowed": Statuses(),
		})
}

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", clierr.Newf(clierr.InvalidPriority, "invalid priority %q", s).
			WithDetails(map[string]any{
				"priority": s,
				"allowed":  Priorities(),
			})
	}
	return p, nil
}

// ParseID validates a task ID argument and returns its canonical form.
func ParseID(input string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return "", ValidateTaskID(input)
	}
	return id.String(), nil
}

// ValidateTaskID returns a CLIError for invalid task ID input.
func ValidateTaskID(input string) *clierr.Error {
	return clierr.Newf(clierr.InvalidTaskID, "invalid task ID %q", input).
		WithDetails(map[string]any{"input": input})
}

// ValidateDate returns a CLIError for invalid date input.
func ValidateDate(field, input string, err error) *clierr.Error {
	return clierr.Newf(clierr.InvalidDate, "invalid %s date: %v", field, err).
		WithDetails(map[string]any{
			"field": field,
			"input": input,
		})
}

// FormatDueDate returns a CLIError for invalid due date input.
func FormatDueDate(input string, err error) *clierr.Error {
	return ValidateDate("due", input, err)
}

// Validate checks the fields every stored task must satisfy.
func Validate(t *Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return clierr.New(clierr.InvalidInput, "title is required")
	}
	if t.WorkspaceID == "" {
		return clierr.New(clierr.InvalidInput, "workspace is required")
	}
	if !t.Status.Valid() {
		return ValidateStatus(string(t.Status))
	}
	if !t.Priority.Valid() {
		_, err := ParsePriority(string(t.Priority))
		return err
	}
	if t.Position < 0 {
		return clierr.Newf(clierr.InvalidInput, "position must be >= 0, got %d", t.Position)
	}
	return nil
}
