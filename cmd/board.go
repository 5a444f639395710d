package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
	"github.com/twiced-technology-gmbh/taskorder/internal/watcher"
)

var (
	flagWatch   bool
	flagSummary bool
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the board column by column",
	Long: `Displays every status column with its tasks in position order.

Use --summary for task counts per status, overdue and out-of-sync counts and the
priority distribution.

Use --watch to keep the display live-updating. The board re-renders automatically
whenever task files change on disk (e.g., from another terminal).
Press Ctrl+C to stop. --watch needs the file backend.`,
	RunE: runBoard,
}

func init() {
	rootCmd.AddCommand(boardCmd)
	boardCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "live-update the board on file changes")
	boardCmd.Flags().BoolVar(&flagSummary, "summary", false, "show the board summary instead of the columns")
}

func runBoard(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	if flagWatch && s.cfg.Backend.Kind != config.BackendFile {
		return s.finish(clierr.Newf(clierr.InvalidInput,
			"--watch needs the file backend (configured: %s)", s.cfg.Backend.Kind))
	}

	if err := renderBoard(s); err != nil {
		return s.finish(err)
	}
	if !flagWatch {
		return s.finish(nil)
	}
	return s.finish(watchBoard(s))
}

func renderBoard(s *session) error {
	tasks := s.snap.Snapshot()
	dirty := s.snap.Dirty()
	format := outputFormat()

	if flagSummary {
		summary := board.Summary(s.cfg.Board.Name, s.cfg.Workspace, tasks, dirty, time.Now())
		switch format {
		case output.FormatJSON:
			return output.JSON(os.Stdout, summary)
		case output.FormatCompact:
			output.OverviewCompact(os.Stdout, summary)
		default:
			output.OverviewTable(os.Stdout, summary)
		}
		return nil
	}

	cols := board.GroupByStatus(tasks, board.SortByPosition)
	switch format {
	case output.FormatJSON:
		return output.JSON(os.Stdout, columnsJSON(cols))
	case output.FormatCompact:
		output.ColumnsCompact(os.Stdout, cols, dirty)
	default:
		output.ColumnsTable(os.Stdout, cols, dirty)
	}
	return nil
}

// boardColumn is the JSON form of one status column.
type boardColumn struct {
	Status task.Status  `json:"status"`
	Tasks  []*task.Task `json:"tasks"`
}

func columnsJSON(cols board.Columns) []boardColumn {
	out := make([]boardColumn, 0, len(task.Statuses()))
	for _, st := range task.Statuses() {
		out = append(out, boardColumn{Status: st, Tasks: cols[st]})
	}
	return out
}

func watchBoard(s *session) error {
	wsDir := task.WorkspaceDir(s.cfg.TasksPath(), s.cfg.Workspace)
	const dirMode = 0o750
	if err := os.MkdirAll(wsDir, dirMode); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New([]string{wsDir}, func() {
		tasks, listErr := s.svc.ListTasks(ctx, s.cfg.Workspace)
		if listErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: reloading tasks: %v\n", listErr)
			return
		}
		s.snap.Resync(tasks, s.disp.Pending)
		clearScreen()
		if renderErr := renderBoard(s); renderErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: rendering board: %v\n", renderErr)
		}
	})
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer w.Close()

	fmt.Fprintln(os.Stderr, "Watching for changes... (Ctrl+C to stop)")

	w.Run(ctx, func(watchErr error) {
		fmt.Fprintf(os.Stderr, "Warning: file watcher: %v\n", watchErr)
	})
	return nil
}

// clearScreen sends ANSI escape codes to clear the terminal and move the
// cursor to the top-left corner.
func clearScreen() {
	fmt.Fprint(os.Stdout, "\033[2J\033[H")
}
