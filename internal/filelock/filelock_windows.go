//go:build windows

package filelock

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

const retryInterval = 2 * time.Millisecond

// lockFile polls with LOCKFILE_FAIL_IMMEDIATELY. A blocking LockFileEx pins
// the OS thread and can starve other goroutines.
func lockFile(f *os.File) error {
	h := windows.Handle(f.Fd())
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	for {
		err := windows.LockFileEx(h, flags, 0, 1, 0, new(windows.Overlapped))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, windows.ERROR_LOCK_VIOLATION):
			time.Sleep(retryInterval)
		default:
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}
