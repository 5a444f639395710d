package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().Bold(true)

	// Status colors aligned with the TUI column headers.
	statusStyles = map[string]lipgloss.Style{
		"todo":        lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		"in-progress": lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		"done":        lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
	}

	priorityStyles = map[string]lipgloss.Style{
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}

	assigneeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	syncStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// DisableColor strips all styling from table output.
func DisableColor() {
	colorEnabled = false
	headerStyle = lipgloss.NewStyle()
	dimStyle = lipgloss.NewStyle()
	titleStyle = lipgloss.NewStyle()
	statusStyles = map[string]lipgloss.Style{}
	priorityStyles = map[string]lipgloss.Style{}
	assigneeStyle = lipgloss.NewStyle()
	syncStyle = lipgloss.NewStyle()
}

// ShortID is the display form of a task id.
func ShortID(id string) string {
	const n = 8
	if len(id) > n {
		return id[:n]
	}
	return id
}

// TaskTable renders a list of tasks as a formatted table. Tasks listed in
// outOfSync are flagged.
func TaskTable(w io.Writer, tasks []*task.Task, outOfSync []string) {
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks found.")
		return
	}

	const pad = 2
	idW, statusW, posW, prioW, titleW, assignW, dueW := 10, 8, 5, 10, 5, 10, 12
	for _, t := range tasks {
		statusW = max(statusW, len(t.Status)+pad)
		posW = max(posW, len(strconv.Itoa(t.Position))+pad)
		prioW = max(prioW, len(t.Priority)+pad)
		titleW = max(titleW, min(len(t.Title)+pad, 50)) //nolint:mnd // max title column width
		assignW = max(assignW, min(len(strings.Join(t.AssignedTo, ","))+pad, 30)) //nolint:mnd // max assignee column width
	}

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s %-*s %-*s",
		idW, "ID", statusW, "STATUS", posW, "POS", prioW, "PRIORITY",
		titleW, "TITLE", assignW, "ASSIGNED", dueW, "DUE")
	fmt.Fprintln(w, headerStyle.Render(strings.TrimRight(header, " ")))

	for _, t := range tasks {
		title := truncate(t.Title, 48) //nolint:mnd // leaves room for padding
		assigned := strings.Join(t.AssignedTo, ",")
		if assigned == "" {
			assigned = dimStyle.Render("--")
		} else {
			assigned = assigneeStyle.Render(truncate(assigned, 28)) //nolint:mnd // max assignee width
		}
		due := dimStyle.Render("--")
		if t.Due != nil {
			due = t.Due.String()
		}

		row := fmt.Sprintf("%-*s %s %-*d %s %s %s %s",
			idW, ShortID(t.ID),
			padRight(styledValue(string(t.Status), statusStyles), statusW),
			posW, t.Position,
			padRight(styledValue(string(t.Priority), priorityStyles), prioW),
			padRight(title, titleW),
			padRight(assigned, assignW),
			due)
		if slices.Contains(outOfSync, t.ID) {
			row += " " + syncStyle.Render("out of sync")
		}
		fmt.Fprintln(w, strings.TrimRight(row, " "))
	}
}

// ColumnsTable renders the board as one section per column in position order.
func ColumnsTable(w io.Writer, cols board.Columns, outOfSync []string) {
	for i, s := range task.Statuses() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		col := cols[s]
		heading := fmt.Sprintf("%s (%d)", strings.ToUpper(string(s)), len(col))
		fmt.Fprintln(w, styledValue(string(s), statusStyles, heading))
		if len(col) == 0 {
			fmt.Fprintln(w, "  "+dimStyle.Render("(empty)"))
			continue
		}
		for _, t := range col {
			line := fmt.Sprintf("  %3d  %s  %s  %s",
				t.Position,
				dimStyle.Render(ShortID(t.ID)),
				padRight(styledValue(string(t.Priority), priorityStyles), 6), //nolint:mnd // widest priority
				truncate(t.Title, 60)) //nolint:mnd // max title width
			if len(t.AssignedTo) > 0 {
				line += "  " + assigneeStyle.Render("@"+strings.Join(t.AssignedTo, " @"))
			}
			if slices.Contains(outOfSync, t.ID) {
				line += "  " + syncStyle.Render("out of sync")
			}
			fmt.Fprintln(w, line)
		}
	}
}

// TaskDetail renders a single task with full detail. The description is
// rendered as markdown.
func TaskDetail(w io.Writer, t *task.Task, outOfSync bool) {
	titleLine := "Task " + ShortID(t.ID) + ": " + t.Title
	fmt.Fprintln(w, titleStyle.Render(titleLine))
	fmt.Fprintln(w, strings.Repeat("─", lipgloss.Width(titleLine)))

	printField(w, "ID", t.ID)
	printField(w, "Workspace", t.WorkspaceID)
	printField(w, "Status", styledValue(string(t.Status), statusStyles))
	printField(w, "Position", strconv.Itoa(t.Position))
	printField(w, "Priority", styledValue(string(t.Priority), priorityStyles))
	if len(t.AssignedTo) > 0 {
		printField(w, "Assigned", assigneeStyle.Render(strings.Join(t.AssignedTo, ", ")))
	} else {
		printField(w, "Assigned", dimStyle.Render("--"))
	}
	if t.Due != nil {
		printField(w, "Due", t.Due.String())
	} else {
		printField(w, "Due", dimStyle.Render("--"))
	}
	printField(w, "Version", strconv.FormatInt(t.Version, 10))
	printField(w, "Created", t.Created.Format("2006-01-02 15:04"))
	printField(w, "Updated", t.Updated.Format("2006-01-02 15:04"))
	if t.Started != nil {
		printField(w, "Started", t.Started.Format("2006-01-02 15:04"))
	}
	if t.Completed != nil {
		printField(w, "Completed", t.Completed.Format("2006-01-02 15:04"))
		printField(w, "Lead time", FormatDuration(t.Completed.Sub(t.Created)))
		if t.Started != nil {
			printField(w, "Cycle time", FormatDuration(t.Completed.Sub(*t.Started)))
		}
	}
	if outOfSync {
		printField(w, "Sync", syncStyle.Render("out of sync, refresh to reload"))
	}

	if t.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, RenderMarkdown(t.Description, 80)) //nolint:mnd // terminal width
	}
}

// RenderMarkdown renders md for the terminal. It falls back to the raw text
// when rendering fails.
func RenderMarkdown(md string, width int) string {
	style := "notty"
	if colorEnabled {
		style = "light"
		if termenv.HasDarkBackground() {
			style = "dark"
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}

// OverviewTable renders a board summary as a formatted dashboard.
func OverviewTable(w io.Writer, s board.Overview) {
	fmt.Fprintln(w, titleStyle.Render(s.BoardName+" / "+s.Workspace))
	fmt.Fprintf(w, "Total: %d tasks\n\n", s.TotalTasks)

	header := fmt.Sprintf("%-16s %6s %8s %12s", "STATUS", "COUNT", "OVERDUE", "OUT OF SYNC")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, ss := range s.Statuses {
		const statusColW = 16
		fmt.Fprintf(w, "%s %6d %8d %12d\n",
			padRight(styledValue(string(ss.Status), statusStyles), statusColW),
			ss.Count, ss.Overdue, ss.OutOfSync)
	}

	fmt.Fprintln(w)
	prioHeader := fmt.Sprintf("%-16s %6s", "PRIORITY", "COUNT")
	fmt.Fprintln(w, headerStyle.Render(prioHeader))
	for _, pc := range s.Priorities {
		const prioColW = 16
		fmt.Fprintf(w, "%s %6d\n",
			padRight(styledValue(string(pc.Priority), priorityStyles), prioColW), pc.Count)
	}
}

// ViolationsTable renders the columns whose positions are not dense.
func ViolationsTable(w io.Writer, violations []board.Violation) {
	if len(violations) == 0 {
		fmt.Fprintln(w, "All columns are dense.")
		return
	}
	header := fmt.Sprintf("%-16s %-14s %s", "WORKSPACE", "STATUS", "POSITIONS")
	fmt.Fprintln(w, headerStyle.Render(header))
	for _, v := range violations {
		fmt.Fprintf(w, "%-16s %s %v\n", v.Workspace,
			padRight(styledValue(string(v.Status), statusStyles), 14), v.Positions) //nolint:mnd // column width
	}
}

// Messagef prints a simple formatted message line.
func Messagef(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}

// FormatDuration renders a duration as human-readable "Xd Yh" or "Xh Ym".
func FormatDuration(d time.Duration) string {
	const hoursPerDay = 24
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if days > 0 {
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h"
	}
	minutes := int(d.Minutes()) % 60 //nolint:mnd // 60 minutes per hour
	return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
}

// padRight pads s with spaces to the given visible width, accounting for ANSI
// escape codes that are invisible but consume bytes.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// styledValue renders s, or text when given, using the style registered for
// s. Unknown keys are returned unstyled.
func styledValue(s string, styles map[string]lipgloss.Style, text ...string) string {
	out := s
	if len(text) > 0 {
		out = text[0]
	}
	if st, ok := styles[s]; ok {
		return st.Render(out)
	}
	return out
}
