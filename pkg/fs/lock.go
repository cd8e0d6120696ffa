//go:build unix

package fs

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [LockDir] when another process holds the lock.
var ErrWouldBlock = errors.New("lock would block")

// Lock is a held advisory lock. Call [Lock.Close] to release it.
type Lock struct {
	mu   sync.Mutex
	file File
	path string
}

// LockDir takes a non-blocking exclusive flock guarding dir.
//
// The lock file lives next to dir ("<parent>/.<base>.lock"), not inside it,
// so wiping the directory does not remove the lock file out from under the
// holder. flock is advisory: only cooperating processes are excluded.
func LockDir(fsys FS, dir string) (*Lock, error) {
	dir = filepath.Clean(dir)
	lockPath := filepath.Join(filepath.Dir(dir), "."+filepath.Base(dir)+".lock")

	err := fsys.MkdirAll(filepath.Dir(lockPath), 0o755)
	if err != nil {
		return nil, fmt.Errorf("lock dir %q: %w", dir, err)
	}

	file, err := fsys.Create(lockPath)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", lockPath, err)
	}

	err = flockRetryEINTR(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		closeErr := file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Join(fmt.Errorf("%w: %s", ErrWouldBlock, lockPath), closeErr)
		}

		return nil, errors.Join(fmt.Errorf("flock %q: %w", lockPath, err), closeErr)
	}

	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (lk *Lock) Path() string {
	return lk.path
}

// Close releases the lock. Close is idempotent.
//
// If both unlocking and closing fail, Close returns an error that wraps both
// underlying errors (see [errors.Join]).
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

func flockRetryEINTR(fd int, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
