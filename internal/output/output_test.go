package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

func init() {
	DisableColor()
}

func sample() []*task.Task {
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	return []*task.Task{
		{ID: "0b6f1c2e-0000-4000-8000-000000000001", WorkspaceID: "ws", Title: "Write docs", Status: task.StatusTodo,
			Priority: task.PriorityHigh, Position: 0, AssignedTo: []string{"ann"}, Created: now, Updated: now},
		{ID: "0b6f1c2e-0000-4000-8000-000000000002", WorkspaceID: "ws", Title: "Ship", Status: task.StatusDone,
			Priority: task.PriorityLow, Position: 0, Created: now, Updated: now},
	}
}

func TestDetect(t *testing.T) {
	t.Setenv(EnvOutput, "")
	if Detect(false, false, false) != FormatTable {
		t.Fatal("default must be table")
	}
	if Detect(true, true, true) != FormatJSON {
		t.Fatal("json flag wins")
	}
	t.Setenv(EnvOutput, "oneline")
	if Detect(false, false, false) != FormatCompact {
		t.Fatal("env must select compact")
	}
	if Detect(false, true, false) != FormatTable {
		t.Fatal("flag must override env")
	}
}

func TestTaskTableFlagsOutOfSync(t *testing.T) {
	var buf bytes.Buffer
	tasks := sample()
	TaskTable(&buf, tasks, []string{tasks[1].ID})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "POS") || !strings.Contains(lines[0], "ASSIGNED") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0b6f1c2e ") || strings.Contains(lines[1], "out of sync") {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "out of sync") {
		t.Fatalf("row 2 = %q", lines[2])
	}
}

func TestColumnsCompact(t *testing.T) {
	var buf bytes.Buffer
	ColumnsCompact(&buf, board.GroupByStatus(sample(), board.SortByPosition), nil)

	want := "todo: 1\n" +
		"  0b6f1c2e [todo#0/high] Write docs @ann\n" +
		"in-progress: 0\n" +
		"done: 1\n" +
		"  0b6f1c2e [done#0/low] Ship\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestJSONError(t *testing.T) {
	var buf bytes.Buffer
	JSONError(&buf, "OUT_OF_RANGE_INDEX", "fromIndex 5 out of range", map[string]any{"max": 2})
	out := buf.String()
	if !strings.Contains(out, `"code": "OUT_OF_RANGE_INDEX"`) || !strings.Contains(out, `"max": 2`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(50*time.Hour + 10*time.Minute); got != "2d 2h" {
		t.Fatalf("got %q", got)
	}
	if got := FormatDuration(90 * time.Minute); got != "1h 30m" {
		t.Fatalf("got %q", got)
	}
}
