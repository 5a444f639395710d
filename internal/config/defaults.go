// Package config handles board configuration: the YAML file, its migrations
// and environment overrides.
package config

const (
	// DefaultDir is the default board directory name.
	DefaultDir = "taskorder"
	// DefaultTasksDir is the default tasks subdirectory name.
	DefaultTasksDir = "tasks"
	// DefaultWorkspace is the workspace used when none is configured.
	DefaultWorkspace = "default"
	// DefaultRole is the caller role used when none is configured.
	DefaultRole = "member"

	// ConfigFileName is the name of the config file within the board directory.
	ConfigFileName = "config.yml"
	// EnvFileName is the optional dotenv file read from the board directory.
	EnvFileName = ".env"
	// LockFileName guards read-modify-write cycles on the file backend.
	LockFileName = ".lock"

	// CurrentVersion is the current config schema version.
	CurrentVersion = 4
)

// Backend kinds.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendHTTP  = "http"
)

// Dispatch defaults.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultMaxAttempts  = 5
	DefaultRetryInitial = "200ms"
	DefaultRetryMax     = "5s"
	DefaultTimeout      = "10s"
	DefaultFlushTimeout = "30s"
)

// Logging defaults.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// Misc defaults.
const (
	DefaultRedisPrefix      = "taskorder"
	DefaultListen           = "127.0.0.1:8080"
	DefaultDescriptionLines = 1
)

// Environment variables that override the config file.
const (
	EnvBackend   = "TASKORDER_BACKEND"
	EnvRedisURL  = "TASKORDER_REDIS_URL"
	EnvAPIURL    = "TASKORDER_API_URL"
	EnvWorkspace = "TASKORDER_WORKSPACE"
	EnvRole      = "TASKORDER_ROLE"
	EnvLogLevel  = "TASKORDER_LOG_LEVEL"
	EnvListen    = "TASKORDER_LISTEN"
)

func defaultDispatch() DispatchConfig {
	return DispatchConfig{
		Workers:      DefaultWorkers,
		QueueSize:    DefaultQueueSize,
		MaxAttempts:  DefaultMaxAttempts,
		RetryInitial: DefaultRetryInitial,
		RetryMax:     DefaultRetryMax,
		Timeout:      DefaultTimeout,
		FlushTimeout: DefaultFlushTimeout,
	}
}
