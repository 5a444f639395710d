// Package cmd implements the taskorder CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/board"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
	"github.com/twiced-technology-gmbh/taskorder/internal/store"
)

// version is set at build time via ldflags.
var version = "dev"

// Global flags.
var (
	flagJSON      bool
	flagTable     bool
	flagCompact   bool
	flagDir       string
	flagNoColor   bool
	flagWorkspace string
	flagRole      string
	flagBackend   string
)

var rootCmd = &cobra.Command{
	Use:   "taskorder",
	Short: "Ordered Kanban board for workspace tasks",
	Long: `taskorder keeps the tasks of a workspace in strictly ordered status columns.
Moves renumber the affected columns and only the changed positions are written
back to the configured backend (task files, Redis or a remote taskorder API).
Run taskorder without arguments to open the interactive board.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runTUI,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		output.ConfigureColor(flagNoColor)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagTable, "table", false, "output as table")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "compact", false, "compact one-line-per-record output")
	rootCmd.PersistentFlags().BoolVar(&flagCompact, "oneline", false, "alias for --compact")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "path to the board directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace to operate on (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagRole, "role", "", "caller role: owner, admin, member, viewer")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "task backend: file, redis, http")
}

// Execute runs the root command.
func Execute() {
	_, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	var silent *clierr.SilentError
	if errors.As(err, &silent) {
		os.Exit(silent.Code)
	}

	cliErr := toCLIError(err)

	if outputFormat() == output.FormatJSON {
		output.JSONError(os.Stdout, cliErr.Code, cliErr.Message, cliErr.Details)
		os.Exit(cliErr.ExitCode())
	}

	fmt.Fprintln(os.Stderr, "Error: "+cliErr.Message)
	os.Exit(cliErr.ExitCode())
}

// toCLIError converts any command error into a structured one. Store
// sentinels get their stable codes; other coded errors keep theirs.
func toCLIError(err error) *clierr.Error {
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		return cliErr
	}

	code := clierr.CodeOf(err)
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = clierr.TaskNotFound
	case errors.Is(err, store.ErrStaleWrite):
		code = clierr.StaleWrite
	case errors.Is(err, store.ErrConflict):
		code = clierr.Conflict
	case errors.Is(err, store.ErrValidation):
		code = clierr.InvalidInput
	case errors.Is(err, config.ErrNotFound):
		code = clierr.BoardNotFound
	case errors.Is(err, config.ErrInvalid):
		code = clierr.InvalidInput
	}

	out := clierr.New(code, err.Error())
	var rangeErr *board.OutOfRangeError
	if errors.As(err, &rangeErr) {
		out = out.WithDetails(map[string]any{
			"column": rangeErr.Column,
			"field":  rangeErr.Field,
			"index":  rangeErr.Index,
			"max":    rangeErr.Max,
		})
	}
	return out
}

// resolveDir returns the board directory: --dir, or the nearest board found
// walking up from the working directory.
func resolveDir() (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return config.FindDir(cwd)
}

// loadConfig finds and loads the board config, then applies the global
// override flags on top of the file and environment values.
func loadConfig() (*config.Config, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}
	if flagRole != "" {
		cfg.Role = flagRole
	}
	if flagBackend != "" {
		cfg.Backend.Kind = flagBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, clierr.New(clierr.InvalidInput, err.Error())
	}
	return cfg, nil
}

// outputFormat returns the detected output format from flags/env.
func outputFormat() output.Format {
	return output.Detect(flagJSON, flagTable, flagCompact)
}

// logActivity appends an entry to the activity log. Errors are silently
// discarded because logging should never fail a command.
func logActivity(cfg *config.Config, action, taskID, detail string) {
	board.LogMutation(cfg.Dir(), action, cfg.Workspace, taskID, detail)
}
