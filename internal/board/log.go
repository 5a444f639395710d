package board

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
)

const (
	logFileName   = "activity.jsonl"
	logFileMode   = 0o600
	maxLogEntries = 10000 // truncate oldest entries when log exceeds this size
)

// LogFileName is the activity log file inside the board directory.
const LogFileName = logFileName

// LogEntry represents a single activity log entry.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Workspace string    `json:"workspace"`
	TaskID    string    `json:"task_id"`
	Detail    string    `json:"detail"`
}

// AppendLog appends a log entry to the activity log file.
// If the log exceeds maxLogEntries, the oldest entries are truncated.
func AppendLog(boardDir string, entry LogEntry) error {
	path := filepath.Join(boardDir, logFileName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode) //nolint:gosec // log path from trusted board dir
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	data, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling log entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing log entry: %w", err)
	}

	// Best-effort; a failed truncation never fails the command.
	_ = truncateLogIfNeeded(path)
	return nil
}

// ReadLog returns the last limit entries of the activity log, oldest first.
// A limit of zero returns every entry.
func ReadLog(boardDir string, limit int) ([]LogEntry, error) {
	data, err := os.ReadFile(filepath.Join(boardDir, logFileName)) //nolint:gosec // trusted path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var e LogEntry
		if err := sonic.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// truncateLogIfNeeded rewrites the log keeping only the most recent
// maxLogEntries lines.
func truncateLogIfNeeded(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // trusted path
	if err != nil {
		return err
	}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) <= maxLogEntries {
		return nil
	}
	lines = lines[len(lines)-maxLogEntries:]
	out := append(bytes.Join(lines, []byte("\n")), '\n')
	return os.WriteFile(path, out, logFileMode)
}

// LogMutation appends an activity log entry. Errors are discarded because
// the audit trail must never fail a command.
func LogMutation(boardDir, action, workspace, taskID, detail string) {
	_ = AppendLog(boardDir, LogEntry{
		Timestamp: time.Now(),
		Action:    action,
		Workspace: workspace,
		TaskID:    taskID,
		Detail:    detail,
	})
}
