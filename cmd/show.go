package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/output"
)

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show task details",
	Long: `Displays full details of a single task including its rendered markdown
description. ID may be abbreviated to a unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(_ *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), sessionOptions{})
	if err != nil {
		return err
	}
	t, err := s.lookup(args[0])
	if err != nil {
		return s.finish(err)
	}
	outOfSync := s.snap.IsDirty(t.ID)
	if err := s.finish(nil); err != nil {
		return err
	}

	switch outputFormat() {
	case output.FormatJSON:
		return output.JSON(os.Stdout, t)
	case output.FormatCompact:
		output.TaskDetailCompact(os.Stdout, t, outOfSync)
	default:
		output.TaskDetail(os.Stdout, t, outOfSync)
	}
	return nil
}
