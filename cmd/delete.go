package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var deleteCmd = &cobra.Command{
	Use:     "delete ID",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Deletes a task and closes the gap it leaves in its column, so the tasks below
it move up by one. Prompts for confirmation in interactive mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolP("yes", "y", false, "skip confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

	ctx := context.Background()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}

	t, err := s.lookup(args[0])
	if err != nil {
		return s.finish(err)
	}

	// Require confirmation in TTY mode unless --yes.
	if !yes {
		ok, err := confirmDelete(t)
		if err != nil {
			return s.finish(err)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Canceled.")
			return s.finish(nil)
		}
	}

	renumbered, err := s.engine.Delete(ctx, t.ID)
	if err != nil {
		return s.finish(err)
	}
	logActivity(s.cfg, "delete", t.ID, t.Title)

	if err := s.finish(nil); err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		if renumbered == nil {
			renumbered = []*task.Task{}
		}
		return output.JSON(os.Stdout, map[string]interface{}{
			"status":     "deleted",
			"id":         t.ID,
			"title":      t.Title,
			"renumbered": renumbered,
		})
	}

	output.Messagef(os.Stdout, "Deleted task %s: %s", output.ShortID(t.ID), t.Title)
	return nil
}

func confirmDelete(t *task.Task) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, clierr.New(clierr.ConfirmationReq,
			"cannot prompt for confirmation (not a terminal); use --yes")
	}
	fmt.Fprintf(os.Stderr, "Delete task %s %q? [y/N] ", output.ShortID(t.ID), t.Title)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}
