package task

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/twiced-technology-gmbh/taskorder/internal/date"
)

func sampleTask() *Task {
	due := date.New(2026, time.March, 4)
	created := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)
	return &Task{
		ID:          "0b8f3a52-7c1e-4a4b-9d55-1f0e6c2b9a10",
		WorkspaceID: "acme",
		Title:       "Write release notes",
		Description: "Cover the **reorder** changes.\n\n- item",
		Status:      StatusInProgress,
		Priority:    PriorityHigh,
		Position:    2,
		AssignedTo:  []string{"u1", "u2"},
		Due:         &due,
		Version:     42,
		Created:     created,
		Updated:     created,
	}
}

func TestEncodeDecodeKeepsFields(t *testing.T) {
	in := sampleTask()

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Fatalf("expected frontmatter prefix, got %q", string(data[:10]))
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Status != in.Status || out.Position != in.Position || out.Version != in.Version {
		t.Fatalf("frontmatter mismatch: %+v", out)
	}
	if out.Description != in.Description {
		t.Fatalf("description mismatch: %q", out.Description)
	}
	if out.Due == nil || out.Due.String() != "2026-03-04" {
		t.Fatalf("due mismatch: %v", out.Due)
	}
	if !slices.Equal(out.AssignedTo, in.AssignedTo) {
		t.Fatalf("assignees mismatch: %v", out.AssignedTo)
	}
}

func TestDecodeRejectsMissingFrontmatter(t *testing.T) {
	cases := map[string]string{
		"no_prefix": "title: x\n",
		"unclosed":  "---\ntitle: x\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(input)); err == nil {
				t.Fatalf("expected error for %q", input)
			}
		})
	}
}

func TestDecodeClosingAtEOF(t *testing.T) {
	got, err := Decode([]byte("---\nid: x\ntitle: t\nstatus: todo\n---"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "t" || got.Description != "" {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestReadWorkspaceSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	wsDir := WorkspaceDir(dir, "acme")
	if err := os.MkdirAll(wsDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	good := sampleTask()
	path := filepath.Join(wsDir, GenerateFilename(good.ID, GenerateSlug(good.Title)))
	if err := Write(path, good); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, "broken.md"), []byte("nope"), 0o600); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	tasks, warnings, err := ReadWorkspace(dir, "acme")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != good.ID {
		t.Fatalf("expected one task, got %+v", tasks)
	}
	if len(warnings) != 1 || warnings[0].File != "broken.md" {
		t.Fatalf("expected one warning, got %+v", warnings)
	}

	found, err := FindByID(dir, good.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != path {
		t.Fatalf("expected %s, got %s", path, found)
	}
	if _, err := FindByID(dir, NewID()); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestReadWorkspaceMissingDir(t *testing.T) {
	tasks, warnings, err := ReadWorkspace(t.TempDir(), "nobody")
	if err != nil || tasks != nil || warnings != nil {
		t.Fatalf("expected empty result, got %v %v %v", tasks, warnings, err)
	}
}

func TestGenerateSlug(t *testing.T) {
	cases := map[string]string{
		"Fix the Login bug!":   "fix-the-login-bug",
		"  ":                   "task",
		"Über -- cool":         "ber-cool",
		strings.Repeat("a", 60): strings.Repeat("a", 50),
		"alpha beta gamma delta epsilon zeta eta theta iota kappa": "alpha-beta-gamma-delta-epsilon-zeta-eta-theta-iota",
	}
	for in, want := range cases {
		if got := GenerateSlug(in); got != want {
			t.Fatalf("GenerateSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractIDFromFilename(t *testing.T) {
	id := NewID()
	got, err := ExtractIDFromFilename(GenerateFilename(id, "slug"))
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ExtractIDFromFilename("001-old-style.md"); err == nil {
		t.Fatalf("expected error for non-uuid filename")
	}
}

func TestUpdateTimestamps(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)

	tk := &Task{Status: StatusTodo}
	UpdateTimestamps(tk, StatusTodo, StatusInProgress, now)
	if tk.Started == nil || tk.Completed != nil {
		t.Fatalf("expected started only, got %+v", tk)
	}

	UpdateTimestamps(tk, StatusInProgress, StatusDone, now.Add(time.Hour))
	if tk.Completed == nil || !tk.Started.Equal(now) {
		t.Fatalf("expected completed and original start, got %+v", tk)
	}

	UpdateTimestamps(tk, StatusDone, StatusInProgress, now.Add(2*time.Hour))
	if tk.Completed != nil {
		t.Fatalf("expected completed cleared on reopen")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleTask()
	c := orig.Clone()
	c.AssignedTo[0] = "changed"
	*c.Due = date.New(2030, time.January, 1)
	if orig.AssignedTo[0] != "u1" || orig.Due.Year() != 2026 {
		t.Fatalf("clone shares memory with original")
	}
}

func TestNormalizeAssignees(t *testing.T) {
	got := NormalizeAssignees([]string{"b", "", "a", "b"})
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("unexpected %v", got)
	}
	if NormalizeAssignees(nil) != nil {
		t.Fatalf("expected nil for empty set")
	}
}

func TestParseStatusAndPriority(t *testing.T) {
	if s, err := ParseStatus("In-Progress"); err != nil || s != StatusInProgress {
		t.Fatalf("unexpected %q %v", s, err)
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Fatalf("expected invalid status")
	}
	if p, err := ParsePriority("HIGH"); err != nil || p != PriorityHigh {
		t.Fatalf("unexpected %q %v", p, err)
	}
	if PriorityHigh.Rank() >= PriorityMedium.Rank() || PriorityMedium.Rank() >= PriorityLow.Rank() {
		t.Fatalf("priority ranks out of order")
	}
}
