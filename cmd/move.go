package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var moveCmd = &cobra.Command{
	Use:   "move ID [STATUS] | move STATUS FROM TO",
	Short: "Move a task within its column or to another status",
	Long: `Moves a task to a new position. Positions are zero-based indexes within a
status column; every task between the old and new position is renumbered.

By id:
  taskorder move 3f2a --to done         append to the end of done
  taskorder move 3f2a done --index 0    put on top of done
  taskorder move 3f2a --index 2         reorder within the current column
  taskorder move 3f2a --next            one column to the right

By index:
  taskorder move todo 4 0               move the fifth todo task to the top
  taskorder move todo 4 1 --to done     move it to index 1 of done

Only the tasks whose position or status changed are written back.`,
	Args: cobra.RangeArgs(1, 3), //nolint:mnd // ID [STATUS] or STATUS FROM TO
	RunE: runMove,
}

func init() {
	moveCmd.Flags().String("to", "", "destination column (default: the task's current column)")
	moveCmd.Flags().Int("index", -1, "destination index (default: end of the destination column)")
	moveCmd.Flags().Bool("next", false, "move to the next status column")
	moveCmd.Flags().Bool("prev", false, "move to the previous status column")
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}

	var req board.MoveRequest
	const indexArgs = 3
	if len(args) == indexArgs {
		req, err = indexMoveRequest(cmd, args)
	} else {
		req, err = idMoveRequest(cmd, args, s)
	}
	if err != nil {
		return s.finish(err)
	}

	changed, err := s.engine.Move(req)
	if err != nil {
		return s.finish(err)
	}
	for _, t := range changed {
		logActivity(s.cfg, "move", t.ID, fmt.Sprintf("%s #%d", t.Status, t.Position))
	}

	// finish waits for the position writes, so a failed write surfaces here.
	if err := s.finish(nil); err != nil {
		return err
	}
	return outputMoveResult(req, changed)
}

// indexMoveRequest parses "STATUS FROM TO [--to STATUS]".
func indexMoveRequest(cmd *cobra.Command, args []string) (board.MoveRequest, error) {
	from, err := task.ParseStatus(args[0])
	if err != nil {
		return board.MoveRequest{}, err
	}
	to := from
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		if to, err = task.ParseStatus(v); err != nil {
			return board.MoveRequest{}, err
		}
	}

	fromIndex, err := parseIndex("from", args[1])
	if err != nil {
		return board.MoveRequest{}, err
	}
	toIndex, err := parseIndex("to", args[2])
	if err != nil {
		return board.MoveRequest{}, err
	}
	return board.MoveRequest{From: from, FromIndex: fromIndex, To: to, ToIndex: toIndex}, nil
}

// idMoveRequest resolves "ID [STATUS] [--index N] [--next|--prev]" against
// the session snapshot.
func idMoveRequest(cmd *cobra.Command, args []string, s *session) (board.MoveRequest, error) {
	t, err := s.lookup(args[0])
	if err != nil {
		return board.MoveRequest{}, err
	}

	to, err := resolveTargetStatus(cmd, args, t.Status)
	if err != nil {
		return board.MoveRequest{}, err
	}

	cols := board.GroupByStatus(s.snap.Snapshot(), board.SortByPosition)
	fromIndex := slices.IndexFunc(cols[t.Status], func(c *task.Task) bool { return c.ID == t.ID })
	if fromIndex < 0 {
		return board.MoveRequest{}, task.NotFound(t.ID)
	}

	toIndex, _ := cmd.Flags().GetInt("index")
	if !cmd.Flags().Changed("index") {
		if to == t.Status {
			return board.MoveRequest{}, clierr.Newf(clierr.NoChanges,
				"task is already in %s; pass --index to reorder it", to)
		}
		toIndex = len(cols[to])
	}
	return board.MoveRequest{From: t.Status, FromIndex: fromIndex, To: to, ToIndex: toIndex, TaskID: t.ID}, nil
}

// resolveTargetStatus picks the destination column from the positional
// STATUS, --to or --next/--prev, defaulting to the current column.
func resolveTargetStatus(cmd *cobra.Command, args []string, current task.Status) (task.Status, error) {
	next, _ := cmd.Flags().GetBool("next")
	prev, _ := cmd.Flags().GetBool("prev")
	target, _ := cmd.Flags().GetString("to")
	if len(args) > 1 {
		if target != "" {
			return "", clierr.New(clierr.InvalidInput, "STATUS given both as argument and --to; use one or the other")
		}
		target = args[1]
	}
	hasStatus := target != ""

	count := 0
	for _, set := range []bool{next, prev, hasStatus} {
		if set {
			count++
		}
	}
	if count > 1 {
		return "", clierr.New(clierr.InvalidInput, "provide at most one of STATUS, --next or --prev")
	}

	statuses := task.Statuses()
	idx := current.Index()
	switch {
	case hasStatus:
		return task.ParseStatus(target)
	case next:
		if idx >= len(statuses)-1 {
			return "", clierr.Newf(clierr.InvalidStatus, "task is already in the last column (%s)", current)
		}
		return statuses[idx+1], nil
	case prev:
		if idx <= 0 {
			return "", clierr.Newf(clierr.InvalidStatus, "task is already in the first column (%s)", current)
		}
		return statuses[idx-1], nil
	default:
		return current, nil
	}
}

func parseIndex(field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, clierr.Newf(clierr.InvalidInput, "%s index %q is not a number", field, s)
	}
	return n, nil
}

// moveResult is the JSON form of a completed move.
type moveResult struct {
	From    task.Status  `json:"from"`
	To      task.Status  `json:"to"`
	Changed []*task.Task `json:"changed"`
}

func outputMoveResult(req board.MoveRequest, changed []*task.Task) error {
	if changed == nil {
		changed = []*task.Task{}
	}
	to := req.To
	if to == "" {
		to = req.From
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, moveResult{From: req.From, To: to, Changed: changed})
	}

	if len(changed) == 0 {
		output.Messagef(os.Stdout, "Nothing to move: task already at %s #%d", to, req.ToIndex)
		return nil
	}
	output.Messagef(os.Stdout, "Moved %s #%d -> %s #%d (%d task(s) renumbered)",
		req.From, req.FromIndex, to, req.ToIndex, len(changed))
	if outputFormat() == output.FormatCompact {
		return nil
	}
	for _, t := range changed {
		output.Messagef(os.Stdout, "  %s  %-11s #%d  %s", output.ShortID(t.ID), t.Status, t.Position, t.Title)
	}
	return nil
}
