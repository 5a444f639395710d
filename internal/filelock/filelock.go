// Package filelock serializes read-modify-write cycles on the file backend
// across processes with an advisory lock file.
package filelock

import (
	"fmt"
	"os"
)

const lockFileMode = 0o600

// Lock acquires an exclusive advisory lock on the file at path, creating it
// if needed, and blocks until the lock is free. The returned function
// releases the lock.
func Lock(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFileMode) //nolint:gosec // lock file path from trusted source
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return func() error {
		unlockErr := unlockFile(f)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}

// With runs fn while holding the lock at path. An error from fn takes
// precedence over an unlock error.
func With(path string, fn func() error) (err error) {
	unlock, err := Lock(path)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlocking %s: %w", path, uerr)
		}
	}()
	return fn()
}
