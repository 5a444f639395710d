package config

import "fmt"

// migrate upgrades a config from its current version to CurrentVersion.
// Each migration function transforms the config one version forward.
// Returns an error if the config version is newer than what this binary supports.
func migrate(cfg *Config) error {
	if cfg.Version == CurrentVersion {
		return nil
	}
	if cfg.Version > CurrentVersion {
		return fmt.Errorf(
			"%w: config version %d is newer than supported version %d (upgrade taskorder)",
			ErrInvalid, cfg.Version, CurrentVersion,
		)
	}
	if cfg.Version < 1 {
		return fmt.Errorf("%w: config version %d is invalid", ErrInvalid, cfg.Version)
	}

	for cfg.Version < CurrentVersion {
		fn, ok := migrations[cfg.Version]
		if !ok {
			return fmt.Errorf("%w: no migration path from version %d", ErrInvalid, cfg.Version)
		}
		if err := fn(cfg); err != nil {
			return fmt.Errorf("migrating config from v%d: %w", cfg.Version, err)
		}
	}

	return nil
}

// migrations maps each version to the function that migrates it to the next version.
// The migration function must increment cfg.Version after a successful migration.
var migrations = map[int]func(*Config) error{
	1: migrateV1ToV2,
	2: migrateV2ToV3,
	3: migrateV3ToV4,
}

// migrateV1ToV2 adds the dispatch section. Fields already set are kept.
func migrateV1ToV2(cfg *Config) error { //nolint:unparam // signature must match migrations map type
	def := defaultDispatch()
	d := &cfg.Dispatch
	if d.Workers == 0 {
		d.Workers = def.Workers
	}
	if d.QueueSize == 0 {
		d.QueueSize = def.QueueSize
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = def.MaxAttempts
	}
	if d.RetryInitial == "" {
		d.RetryInitial = def.RetryInitial
	}
	if d.RetryMax == "" {
		d.RetryMax = def.RetryMax
	}
	if d.Timeout == "" {
		d.Timeout = def.Timeout
	}
	if d.FlushTimeout == "" {
		d.FlushTimeout = def.FlushTimeout
	}
	cfg.Version = 2
	return nil
}

// migrateV2ToV3 adds log settings and the caller role.
func migrateV2ToV3(cfg *Config) error { //nolint:unparam // signature must match migrations map type
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Role == "" {
		cfg.Role = DefaultRole
	}
	cfg.Version = 3
	return nil
}

// migrateV3ToV4 adds the backend section; older boards were file-only.
func migrateV3ToV4(cfg *Config) error { //nolint:unparam // signature must match migrations map type
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = BackendFile
	}
	if cfg.Backend.RedisPrefix == "" {
		cfg.Backend.RedisPrefix = DefaultRedisPrefix
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Workspace == "" {
		cfg.Workspace = DefaultWorkspace
	}
	cfg.Version = 4
	return nil
}
