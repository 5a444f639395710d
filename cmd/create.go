package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/date"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var createCmd = &cobra.Command{
	Use:     "create [TITLE]",
	Aliases: []string{"add"},
	Short:   "Create a new task",
	Long: `Creates a new task at the end of its status column.

Title can be provided as a positional argument or via --title flag.
The description is markdown and can be given with --description or --body.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().String("title", "", "task title (alternative to positional argument)")
	createCmd.Flags().String("status", "", "task status (default todo)")
	createCmd.Flags().String("priority", "", "task priority: high, medium, low (default medium)")
	createCmd.Flags().StringSlice("assign", nil, "assignee ids (comma-separated, repeatable)")
	createCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	createCmd.Flags().String("description", "", "task description (markdown)")
	createCmd.Flags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		switch name {
		case "assignee", "assigned-to":
			name = "assign"
		case "body":
			name = "description"
		}
		return pflag.NormalizedName(name)
	})
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	title, err := resolveCreateTitle(cmd, args)
	if err != nil {
		return err
	}

	now := time.Now()
	t := &task.Task{
		Title:    title,
		Status:   task.StatusTodo,
		Priority: task.DefaultPriority,
		Created:  now,
		Updated:  now,
	}
	if err := applyCreateFlags(cmd, t); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}

	created, err := s.engine.Create(ctx, t)
	if err != nil {
		return s.finish(err)
	}
	logActivity(s.cfg, "create", created.ID, created.Title)

	if err := s.finish(nil); err != nil {
		return err
	}
	return outputCreateResult(created)
}

func outputCreateResult(t *task.Task) error {
	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, t)
	}

	output.Messagef(os.Stdout, "Created task %s: %s", output.ShortID(t.ID), t.Title)
	output.Messagef(os.Stdout, "  ID: %s", t.ID)
	output.Messagef(os.Stdout, "  Status: %s #%d | Priority: %s", t.Status, t.Position, t.Priority)
	if len(t.AssignedTo) > 0 {
		output.Messagef(os.Stdout, "  Assigned: %s", strings.Join(t.AssignedTo, ", "))
	}
	return nil
}

// resolveCreateTitle returns the task title from either the positional arg or --title flag.
func resolveCreateTitle(cmd *cobra.Command, args []string) (string, error) {
	flagTitle, _ := cmd.Flags().GetString("title")
	hasPositional := len(args) > 0
	hasFlag := flagTitle != ""

	switch {
	case hasPositional && hasFlag:
		return "", clierr.New(clierr.InvalidInput,
			"title provided both as argument and --title flag; use one or the other")
	case hasPositional:
		return args[0], nil
	case hasFlag:
		return flagTitle, nil
	default:
		return "", clierr.New(clierr.InvalidInput, "title is required: provide it as an argument or with --title")
	}
}

func applyCreateFlags(cmd *cobra.Command, t *task.Task) error {
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		s, err := task.ParseStatus(v)
		if err != nil {
			return err
		}
		t.Status = s
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		p, err := task.ParsePriority(v)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if v, _ := cmd.Flags().GetStringSlice("assign"); len(v) > 0 {
		t.AssignedTo = task.NormalizeAssignees(v)
	}
	if v, _ := cmd.Flags().GetString("due"); v != "" {
		d, err := date.Parse(v)
		if err != nil {
			return task.FormatDueDate(v, err)
		}
		t.Due = &d
	}
	if v, _ := cmd.Flags().GetString("description"); v != "" {
		t.Description = v
	}
	if strings.TrimSpace(t.Title) == "" {
		return clierr.New(clierr.InvalidInput, "title must not be blank")
	}
	return nil
}
