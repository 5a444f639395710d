package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
)

const fileMode = 0o600

// Sentinel errors.
var (
	ErrNotFound = errors.New("no taskorder board found (run 'taskorder init' to create one)")
	ErrInvalid  = errors.New("invalid config")
)

// Config represents the board configuration.
type Config struct {
	Version   int            `yaml:"version"`
	Board     BoardConfig    `yaml:"board"`
	Workspace string         `yaml:"workspace"`
	TasksDir  string         `yaml:"tasks_dir"`
	Role      string         `yaml:"role,omitempty"`
	Backend   BackendConfig  `yaml:"backend"`
	Server    ServerConfig   `yaml:"server,omitempty"`
	Dispatch  DispatchConfig `yaml:"dispatch"`
	Log       LogConfig      `yaml:"log"`
	TUI       TUIConfig      `yaml:"tui,omitempty"`

	// dir is the absolute path to the board directory (not serialized).
	dir string `yaml:"-"`
}

// BoardConfig holds board metadata.
type BoardConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// BackendConfig selects where tasks are persisted.
type BackendConfig struct {
	Kind        string `yaml:"kind"`
	RedisURL    string `yaml:"redis_url,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
	APIURL      string `yaml:"api_url,omitempty"`
}

// ServerConfig configures `taskorder serve`.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// DispatchConfig tunes the persistence dispatcher. Durations are Go
// duration strings.
type DispatchConfig struct {
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryInitial string `yaml:"retry_initial"`
	RetryMax     string `yaml:"retry_max"`
	Timeout      string `yaml:"timeout"`
	FlushTimeout string `yaml:"flush_timeout"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TUIConfig holds TUI-specific display settings.
type TUIConfig struct {
	DescriptionLines int `yaml:"description_lines,omitempty"`
}

// Dir returns the absolute path to the board directory.
func (c *Config) Dir() string {
	return c.dir
}

// SetDir sets the board directory path on the config.
func (c *Config) SetDir(dir string) {
	c.dir = dir
}

// TasksPath returns the absolute path to the tasks directory.
func (c *Config) TasksPath() string {
	return filepath.Join(c.dir, c.TasksDir)
}

// ConfigPath returns the absolute path to the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.dir, ConfigFileName)
}

// LockPath returns the absolute path to the board lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.dir, LockFileName)
}

// NewDefault creates a Config with default values.
func NewDefault(name string) *Config {
	return &Config{
		Version:   CurrentVersion,
		Board:     BoardConfig{Name: name},
		Workspace: DefaultWorkspace,
		TasksDir:  DefaultTasksDir,
		Role:      DefaultRole,
		Backend:   BackendConfig{Kind: BackendFile, RedisPrefix: DefaultRedisPrefix},
		Server:    ServerConfig{Listen: DefaultListen},
		Dispatch:  defaultDispatch(),
		Log:       LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		TUI:       TUIConfig{DescriptionLines: DefaultDescriptionLines},
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d (expected %d)", ErrInvalid, c.Version, CurrentVersion)
	}
	if c.Board.Name == "" {
		return fmt.Errorf("%w: board.name is required", ErrInvalid)
	}
	if c.TasksDir == "" {
		return fmt.Errorf("%w: tasks_dir is required", ErrInvalid)
	}
	if c.Workspace == "" || strings.ContainsAny(c.Workspace, `/\`) {
		return fmt.Errorf("%w: workspace %q must be a non-empty name without path separators", ErrInvalid, c.Workspace)
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	const maxDescriptionLines = 3
	if c.TUI.DescriptionLines < 0 || c.TUI.DescriptionLines > maxDescriptionLines {
		return fmt.Errorf("%w: tui.description_lines must be between 0 and %d", ErrInvalid, maxDescriptionLines)
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.Backend.Kind {
	case BackendFile:
		return nil
	case BackendRedis:
		if c.Backend.RedisURL == "" {
			return fmt.Errorf("%w: backend.redis_url is required for the redis backend", ErrInvalid)
		}
		return nil
	case BackendHTTP:
		if c.Backend.APIURL == "" {
			return fmt.Errorf("%w: backend.api_url is required for the http backend", ErrInvalid)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown backend.kind %q (file, redis, http)", ErrInvalid, c.Backend.Kind)
	}
}

func (c *Config) validateDispatch() error {
	d := c.Dispatch
	if d.Workers < 1 {
		return fmt.Errorf("%w: dispatch.workers must be >= 1", ErrInvalid)
	}
	if d.QueueSize < 1 {
		return fmt.Errorf("%w: dispatch.queue_size must be >= 1", ErrInvalid)
	}
	if d.MaxAttempts < 1 {
		return fmt.Errorf("%w: dispatch.max_attempts must be >= 1", ErrInvalid)
	}
	durations := map[string]string{
		"retry_initial": d.RetryInitial,
		"retry_max":     d.RetryMax,
		"timeout":       d.Timeout,
		"flush_timeout": d.FlushTimeout,
	}
	for key, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: dispatch.%s %q: %w", ErrInvalid, key, v, err)
		}
	}
	return nil
}

func (c *Config) validateLog() error {
	if !slices.Contains([]string{"trace", "debug", "info", "warn", "warning", "error"}, c.Log.Level) {
		return fmt.Errorf("%w: log.level %q is not a known level", ErrInvalid, c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalid)
	}
	return nil
}

// RetryInitial returns the first retry delay of the dispatcher.
func (c *Config) RetryInitial() time.Duration {
	return parseDurationOr(c.Dispatch.RetryInitial, DefaultRetryInitial)
}

// RetryMax returns the retry delay ceiling of the dispatcher.
func (c *Config) RetryMax() time.Duration {
	return parseDurationOr(c.Dispatch.RetryMax, DefaultRetryMax)
}

// Timeout returns the per-attempt timeout for backend calls.
func (c *Config) Timeout() time.Duration {
	return parseDurationOr(c.Dispatch.Timeout, DefaultTimeout)
}

// FlushTimeout bounds how long a command waits for pending updates at exit.
func (c *Config) FlushTimeout() time.Duration {
	return parseDurationOr(c.Dispatch.FlushTimeout, DefaultFlushTimeout)
}

// DescriptionLines returns the number of description preview lines on TUI cards.
func (c *Config) DescriptionLines() int {
	return c.TUI.DescriptionLines
}

func parseDurationOr(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// ApplyEnv loads the board's .env file (without overriding variables that are
// already set) and applies TASKORDER_* overrides on top of the file values.
// Overrides are never written back by Save.
func (c *Config) ApplyEnv() {
	if c.dir != "" {
		_ = godotenv.Load(filepath.Join(c.dir, EnvFileName))
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{EnvBackend, &c.Backend.Kind},
		{EnvRedisURL, &c.Backend.RedisURL},
		{EnvAPIURL, &c.Backend.APIURL},
		{EnvWorkspace, &c.Workspace},
		{EnvRole, &c.Role},
		{EnvLogLevel, &c.Log.Level},
		{EnvListen, &c.Server.Listen},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// Init creates a new board in the given directory with default settings.
// It creates the board directory, tasks subdirectory, and config file.
func Init(dir, name string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	cfg := NewDefault(name)
	cfg.SetDir(absDir)
	if err := cfg.Create(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Create writes the config file and makes the tasks directory for cfg.
func (c *Config) Create() error {
	const dirMode = 0o750
	if err := os.MkdirAll(c.TasksPath(), dirMode); err != nil {
		return fmt.Errorf("creating tasks directory: %w", err)
	}
	if err := c.Save(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Save writes the config to its config file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(c.ConfigPath(), data, fileMode)
}

// Load reads, migrates, applies environment overrides to, and validates a
// config from the given board directory.
func Load(dir string) (*Config, error) {
	cfg, err := read(dir)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load without environment overrides. Used by `config set`,
// which saves the result back to disk.
func LoadFile(dir string) (*Config, error) {
	cfg, err := read(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(absDir, ConfigFileName)) //nolint:gosec // config path from trusted source
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.dir = absDir

	oldVersion := cfg.Version
	if err := migrate(&cfg); err != nil {
		return nil, err
	}

	// Persist migrated config so future loads skip re-migration.
	if cfg.Version != oldVersion {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("saving migrated config: %w", err)
		}
	}
	return &cfg, nil
}

// FindDir walks upward from startDir looking for a board directory
// containing config.yml. Returns the absolute path to the board directory.
func FindDir(startDir string) (string, error) {
	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	dir := absStart
	for {
		candidate := filepath.Join(dir, DefaultDir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Join(dir, DefaultDir), nil
		}

		// Also check if we're inside the board directory itself.
		if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", clierr.New(clierr.BoardNotFound,
				"no taskorder board found (run 'taskorder init' to create one)")
		}
		dir = parent
	}
}
