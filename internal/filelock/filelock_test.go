package filelock

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestWithSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(path, func() error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("with: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
}

func TestWithReturnsCallbackError(t *testing.T) {
	errBoom := errors.New("boom")
	err := With(filepath.Join(t.TempDir(), ".lock"), func() error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error, got %v", err)
	}
}
