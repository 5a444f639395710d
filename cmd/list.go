package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/task"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `Lists the tasks of the workspace column by column. Within a column tasks
follow their board position, or priority with --sort priority.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringSlice("status", nil, "filter by status (comma-separated)")
	listCmd.Flags().StringSlice("priority", nil, "filter by priority (comma-separated)")
	listCmd.Flags().String("assignee", "", "filter by assignee")
	listCmd.Flags().String("sort", string(board.SortByPosition), "order within a column (position, priority)")
	listCmd.Flags().IntP("limit", "n", 0, "limit number of results")
	listCmd.Flags().StringP("search", "s", "", "search tasks by title or description (case-insensitive)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	statuses, _ := cmd.Flags().GetStringSlice("status")
	priorities, _ := cmd.Flags().GetStringSlice("priority")
	assignee, _ := cmd.Flags().GetString("assignee")
	sortBy, _ := cmd.Flags().GetString("sort")
	limit, _ := cmd.Flags().GetInt("limit")
	search, _ := cmd.Flags().GetString("search")

	key, err := board.ParseSortKey(sortBy)
	if err != nil {
		return err
	}
	filter := board.FilterOptions{Assignee: assignee, Search: search}
	for _, v := range statuses {
		s, err := task.ParseStatus(v)
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, s)
	}
	for _, v := range priorities {
		p, err := task.ParsePriority(v)
		if err != nil {
			return err
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	s, err := openSession(context.Background(), sessionOptions{})
	if err != nil {
		return err
	}
	tasks := board.GroupByStatus(board.Select(s.snap.Snapshot(), filter), key).Flatten()
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	dirty := s.snap.Dirty()
	if err := s.finish(nil); err != nil {
		return err
	}

	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, tasks)
	case output.FormatCompact:
		output.TaskCompact(os.Stdout, tasks, dirty)
	default:
		output.TaskTable(os.Stdout, tasks, dirty)
	}
	return nil
}
