package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/taskorder/internal/access"
	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
	"github.com/twiced-technology-gmbh/taskorder/internal/config"
	"github.com/twiced-technology-gmbh/taskorder/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify board configuration",
	Long: `View the effective configuration, get a specific key, or set a writable value.
show and get include TASKORDER_* environment overrides; set edits the file only.`,
	RunE: runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2), //nolint:mnd // key and value
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// configAccessor describes how to get and set a config key.
type configAccessor struct {
	get      func(*config.Config) any
	set      func(*config.Config, string) error
	writable bool
}

func stringAccessor(field func(*config.Config) *string) configAccessor {
	return configAccessor{
		get:      func(c *config.Config) any { return *field(c) },
		set:      func(c *config.Config, v string) error { *field(c) = v; return nil },
		writable: true,
	}
}

// intAccessor parses the value; Validate does the range check.
func intAccessor(key string, field func(*config.Config) *int) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return clierr.Newf(clierr.InvalidInput, "invalid %s %q: must be an integer", key, v)
			}
			*field(c) = n
			return nil
		},
		writable: true,
	}
}

func durationAccessor(key string, field func(*config.Config) *string) configAccessor {
	return configAccessor{
		get: func(c *config.Config) any { return *field(c) },
		set: func(c *config.Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return clierr.Newf(clierr.InvalidInput, "invalid %s %q: %v", key, v, err)
			}
			*field(c) = v
			return nil
		},
		writable: true,
	}
}

func configAccessors() map[string]configAccessor {
	return map[string]configAccessor{
		"version": {
			get: func(c *config.Config) any { return c.Version },
		},
		"board.name":        stringAccessor(func(c *config.Config) *string { return &c.Board.Name }),
		"board.description": stringAccessor(func(c *config.Config) *string { return &c.Board.Description }),
		"workspace":         stringAccessor(func(c *config.Config) *string { return &c.Workspace }),
		"tasks_dir": {
			get: func(c *config.Config) any { return c.TasksDir },
		},
		"role": {
			get: func(c *config.Config) any { return c.Role },
			set: func(c *config.Config, v string) error {
				r, err := access.Parse(v)
				if err != nil {
					return err
				}
				c.Role = r.Name()
				return nil
			},
			writable: true,
		},
		"backend.kind":         stringAccessor(func(c *config.Config) *string { return &c.Backend.Kind }),
		"backend.redis_url":    stringAccessor(func(c *config.Config) *string { return &c.Backend.RedisURL }),
		"backend.redis_prefix": stringAccessor(func(c *config.Config) *string { return &c.Backend.RedisPrefix }),
		"backend.api_url":      stringAccessor(func(c *config.Config) *string { return &c.Backend.APIURL }),
		"server.listen":        stringAccessor(func(c *config.Config) *string { return &c.Server.Listen }),
		"dispatch.workers":     intAccessor("dispatch.workers", func(c *config.Config) *int { return &c.Dispatch.Workers }),
		"dispatch.queue_size":  intAccessor("dispatch.queue_size", func(c *config.Config) *int { return &c.Dispatch.QueueSize }),
		"dispatch.max_attempts": intAccessor("dispatch.max_attempts",
			func(c *config.Config) *int { return &c.Dispatch.MaxAttempts }),
		"dispatch.retry_initial": durationAccessor("dispatch.retry_initial",
			func(c *config.Config) *string { return &c.Dispatch.RetryInitial }),
		"dispatch.retry_max": durationAccessor("dispatch.retry_max",
			func(c *config.Config) *string { return &c.Dispatch.RetryMax }),
		"dispatch.timeout": durationAccessor("dispatch.timeout",
			func(c *config.Config) *string { return &c.Dispatch.Timeout }),
		"dispatch.flush_timeout": durationAccessor("dispatch.flush_timeout",
			func(c *config.Config) *string { return &c.Dispatch.FlushTimeout }),
		"log.level":  stringAccessor(func(c *config.Config) *string { return &c.Log.Level }),
		"log.format": stringAccessor(func(c *config.Config) *string { return &c.Log.Format }),
		"tui.description_lines": intAccessor("tui.description_lines",
			func(c *config.Config) *int { return &c.TUI.DescriptionLines }),
	}
}

// allConfigKeys returns config keys in display order.
func allConfigKeys() []string {
	return []string{
		"version",
		"board.name",
		"board.description",
		"workspace",
		"tasks_dir",
		"role",
		"backend.kind",
		"backend.redis_url",
		"backend.redis_prefix",
		"backend.api_url",
		"server.listen",
		"dispatch.workers",
		"dispatch.queue_size",
		"dispatch.max_attempts",
		"dispatch.retry_initial",
		"dispatch.retry_max",
		"dispatch.timeout",
		"dispatch.flush_timeout",
		"log.level",
		"log.format",
		"tui.description_lines",
	}
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	accessors := configAccessors()

	if outputFormat() == output.FormatJSON {
		m := make(map[string]any, len(accessors))
		for _, key := range allConfigKeys() {
			m[key] = accessors[key].get(cfg)
		}
		return output.JSON(os.Stdout, m)
	}

	for _, key := range allConfigKeys() {
		val := accessors[key].get(cfg)
		fmt.Fprintf(os.Stdout, "%-24s %v\n", key, formatConfigValue(val))
	}
	return nil
}

func runConfigGet(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key := args[0]
	acc, ok := configAccessors()[key]
	if !ok {
		return clierr.Newf(clierr.InvalidInput, "unknown config key %q", key)
	}

	val := acc.get(cfg)

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, val)
	}

	fmt.Fprintln(os.Stdout, formatConfigValue(val))
	return nil
}

func runConfigSet(_ *cobra.Command, args []string) error {
	dir, err := resolveDir()
	if err != nil {
		return err
	}
	// Environment overrides must not leak into the saved file.
	cfg, err := config.LoadFile(dir)
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	acc, ok := configAccessors()[key]
	if !ok {
		return clierr.Newf(clierr.InvalidInput, "unknown config key %q", key)
	}
	if !acc.writable {
		return clierr.Newf(clierr.InvalidInput, "config key %q is read-only", key)
	}

	if err := acc.set(cfg, value); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if outputFormat() == output.FormatJSON {
		return output.JSON(os.Stdout, map[string]any{"key": key, "value": acc.get(cfg)})
	}

	output.Messagef(os.Stdout, "Set %s = %v", key, formatConfigValue(acc.get(cfg)))
	return nil
}

func formatConfigValue(val any) string {
	switch v := val.(type) {
	case []string:
		return strings.Join(v, ", ")
	case string:
		if v == "" {
			return "--"
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
