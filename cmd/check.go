package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every column is numbered 0..n-1",
	Long: `Checks that the positions within each status column are exactly 0, 1, ..., n-1
with no gaps or duplicates. Exits with INVARIANT_VIOLATION when a column is broken.

Use --fix to renumber broken columns in their current order and write the
repaired positions back.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("fix", false, "renumber broken columns")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	fix, _ := cmd.Flags().GetBool("fix")

	s, err := openSession(context.Background(), sessionOptions{})
	if err != nil {
		return err
	}

	violations := invariantViolations(s)
	if len(violations) == 0 {
		if err := s.finish(nil); err != nil {
			return err
		}
		return outputCheckResult(nil, 0)
	}

	if !fix {
		printViolations(violations)
		return s.finish(board.CheckInvariant(s.snap.Snapshot()))
	}

	changed, err := s.engine.CompactAll()
	if err != nil {
		return s.finish(err)
	}
	logActivity(s.cfg, "compact", "", fmt.Sprintf("repaired %d position(s)", len(changed)))
	if err := s.finish(nil); err != nil {
		return err
	}
	return outputCheckResult(violations, len(changed))
}

func invariantViolations(s *session) []board.Violation {
	var invErr *board.InvariantError
	if errors.As(board.CheckInvariant(s.snap.Snapshot()), &invErr) {
		return invErr.Violations
	}
	return nil
}

func printViolations(violations []board.Violation) {
	switch outputFormat() {
	case output.FormatJSON:
		// The JSON error on stdout carries the message; details go to stderr.
		output.ViolationsCompact(os.Stderr, violations)
	case output.FormatCompact:
		output.ViolationsCompact(os.Stdout, violations)
	default:
		output.ViolationsTable(os.Stdout, violations)
	}
}

// checkResult is the JSON form of a successful check.
type checkResult struct {
	OK       bool              `json:"ok"`
	Repaired []board.Violation `json:"repaired"`
	Changed  int               `json:"changed"`
}

func outputCheckResult(repaired []board.Violation, changed int) error {
	if outputFormat() == output.FormatJSON {
		if repaired == nil {
			repaired = []board.Violation{}
		}
		return output.JSON(os.Stdout, checkResult{OK: true, Repaired: repaired, Changed: changed})
	}
	if len(repaired) == 0 {
		output.Messagef(os.Stdout, "All columns are numbered 0..n-1.")
		return nil
	}
	output.Messagef(os.Stdout, "Repaired %d column(s), renumbered %d task(s).", len(repaired), changed)
	return nil
}
