package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunLock is an exclusive lock over the storage root, preventing two
// overlapping runs from writing the same partitions. Concurrent runs are not
// supported; a held lock fails the second run fast instead of letting it
// corrupt output.
type RunLock struct {
	path string
}

// AcquireRunLock creates the lock file, failing if another run holds it.
func AcquireRunLock(root, runID string) (*RunLock, error) {
	path := filepath.Join(root, ".run.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			held, _ := os.ReadFile(path)
			return nil, fmt.Errorf("another run holds the lock (%s): remove %s if it is stale", string(held), path)
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	fmt.Fprintf(f, "run_id=%s pid=%d started=%s", runID, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	f.Close()
	return &RunLock{path: path}, nil
}

// Release removes the lock file.
func (l *RunLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
