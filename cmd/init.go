package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new board",
	Long:  `Creates a board directory with config.yml and a tasks/ subdirectory.`,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().String("name", "", "board name (defaults to current directory name)")
	initCmd.Flags().String("redis-url", "", "redis URL (with --backend redis)")
	initCmd.Flags().String("api-url", "", "taskorder API URL (with --backend http)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	dir := flagDir
	if dir == "" {
		dir = config.DefaultDir
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	if _, err := os.Stat(filepath.Join(absDir, config.ConfigFileName)); err == nil {
		return clierr.Newf(clierr.BoardAlreadyExists, "board already initialized in %s", absDir).
			WithDetails(map[string]any{"dir": absDir})
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		name = filepath.Base(cwd)
	}

	cfg := config.NewDefault(name)
	cfg.SetDir(absDir)
	if flagWorkspace != "" {
		cfg.Workspace = flagWorkspace
	}
	if flagRole != "" {
		if _, err := access.Parse(flagRole); err != nil {
			return err
		}
		cfg.Role = flagRole
	}
	if flagBackend != "" {
		cfg.Backend.Kind = flagBackend
	}
	cfg.Backend.RedisURL, _ = cmd.Flags().GetString("redis-url")
	cfg.Backend.APIURL, _ = cmd.Flags().GetString("api-url")

	if err := cfg.Validate(); err != nil {
		return clierr.New(clierr.InvalidInput, err.Error())
	}
	if err := cfg.Create(); err != nil {
		return err
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]string{
			"status":    "initialized",
			"dir":       absDir,
			"name":      name,
			"config":    cfg.ConfigPath(),
			"tasks":     cfg.TasksPath(),
			"workspace": cfg.Workspace,
			"backend":   cfg.Backend.Kind,
		})
	}

	output.Messagef(os.Stdout, "Initialized board %q in %s", name, absDir)
	output.Messagef(os.Stdout, "  Config:    %s", cfg.ConfigPath())
	output.Messagef(os.Stdout, "  Tasks:     %s", cfg.TasksPath())
	output.Messagef(os.Stdout, "  Workspace: %s", cfg.Workspace)
	output.Messagef(os.Stdout, "  Backend:   %s", cfg.Backend.Kind)
	return nil
}
