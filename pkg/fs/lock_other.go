//go:build !unix

package fs

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// ErrWouldBlock is returned by [LockDir] when another process holds the lock.
var ErrWouldBlock = errors.New("lock would block")

// Lock is a held lock. Call [Lock.Close] to release it.
//
// Without flock the lock is only a marker file; it does not exclude other
// processes.
type Lock struct {
	mu   sync.Mutex
	file File
	path string
}

// LockDir creates the marker file next to dir.
func LockDir(fsys FS, dir string) (*Lock, error) {
	dir = filepath.Clean(dir)
	lockPath := filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+".lock")

	file, err := fsys.Create(lockPath)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", lockPath, err)
	}

	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (lk *Lock) Path() string {
	return lk.path
}

// Close releases the lock. Close is idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	err := lk.file.Close()
	lk.file = nil

	return err
}
