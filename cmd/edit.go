package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a task",
	Long: `Modifies content fields of an existing task. Only specified fields are changed.
Status and position change through move.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("priority", "", "new priority")
	editCmd.Flags().StringSlice("assign", nil, "replace assignees (comma-separated)")
	editCmd.Flags().Bool("unassign", false, "remove all assignees")
	editCmd.Flags().String("due", "", "new due date (YYYY-MM-DD)")
	editCmd.Flags().Bool("clear-due", false, "clear due date")
	editCmd.Flags().String("description", "", "new description (replaces the whole text)")
	editCmd.Flags().StringP("append-description", "a", "", "append text to the description")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}

	t, err := s.lookup(args[0])
	if err != nil {
		return s.finish(err)
	}
	patch, err := buildEditPatch(cmd, t)
	if err != nil {
		return s.finish(err)
	}

	updated, err := s.engine.Edit(ctx, t.ID, patch)
	if err != nil {
		return s.finish(err)
	}
	logActivity(s.cfg, "edit", updated.ID, editSummary(patch))

	if err := s.finish(nil); err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, updated)
	}
	output.Messagef(os.Stdout, "Updated task %s: %s", output.ShortID(updated.ID), updated.Title)
	return nil
}

// buildEditPatch turns the edit flags into a content patch for t.
func buildEditPatch(cmd *cobra.Command, t *task.Task) (store.Patch, error) {
	var p store.Patch
	flags := cmd.Flags()

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		if strings.TrimSpace(v) == "" {
			return p, clierr.New(clierr.InvalidInput, "title must not be blank")
		}
		p.Title = &v
	}
	if flags.Changed("priority") {
		v, _ := flags.GetString("priority")
		prio, err := task.ParsePriority(v)
		if err != nil {
			return p, err
		}
		p.Priority = &prio
	}

	unassign, _ := flags.GetBool("unassign")
	switch {
	case unassign && flags.Changed("assign"):
		return p, clierr.New(clierr.InvalidInput, "--assign and --unassign are mutually exclusive")
	case unassign:
		none := []string{}
		p.AssignedTo = &none
	case flags.Changed("assign"):
		v, _ := flags.GetStringSlice("assign")
		ids := task.NormalizeAssignees(v)
		p.AssignedTo = &ids
	}

	clearDue, _ := flags.GetBool("clear-due")
	switch {
	case clearDue && flags.Changed("due"):
		return p, clierr.New(clierr.InvalidInput, "--due and --clear-due are mutually exclusive")
	case clearDue:
		p.ClearDue = true
	case flags.Changed("due"):
		v, _ := flags.GetString("due")
		d, err := date.Parse(v)
		if err != nil {
			return p, task.FormatDueDate(v, err)
		}
		p.Due = &d
	}

	appendText, _ := flags.GetString("append-description")
	switch {
	case appendText != "" && flags.Changed("description"):
		return p, clierr.New(clierr.InvalidInput, "--description and --append-description are mutually exclusive")
	case appendText != "":
		desc := appendText
		if t.Description != "" {
			desc = strings.TrimRight(t.Description, "\n") + "\n\n" + appendText
		}
		p.Description = &desc
	case flags.Changed("description"):
		v, _ := flags.GetString("description")
		p.Description = &v
	}

	return p, nil
}

// editSummary names the fields a patch touches, for the activity log.
func editSummary(p store.Patch) string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Priority != nil {
		fields = append(fields, fmt.Sprintf("priority=%s", *p.Priority))
	}
	if p.AssignedTo != nil {
		fields = append(fields, "assigned")
	}
	if p.Due != nil || p.ClearDue {
		fields = append(fields, "due")
	}
	return strings.Join(fields, ", ")
}
