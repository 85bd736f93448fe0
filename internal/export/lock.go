package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockSuffix is appended to the output path to name its lock file.
const LockSuffix = ".lock"

// ErrOutputLocked indicates another export currently owns the output file.
var ErrOutputLocked = errors.New("output file is locked by another export")

// FileLock provides exclusive file locking using flock(2).
// The lock is released by the kernel when the process exits or crashes.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a new file lock at the given path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path: path,
	}
}

// TryLock attempts to acquire the exclusive lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
// A lock taken on a file that was unlinked by its previous owner is dropped
// and retried on the file currently at the path.
func (l *FileLock) TryLock() (bool, error) {
	for {
		if err := l.ensureFileExists(); err != nil {
			return false, err
		}

		err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err != nil {
			l.release()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return false, nil
			}
			return false, fmt.Errorf("flock failed: %w", err)
		}

		current, err := l.isCurrent()
		if err != nil {
			l.release()
			return false, err
		}
		if current {
			return true, nil
		}
		l.release()
	}
}

// isCurrent reports whether the open file is still the one linked at path.
func (l *FileLock) isCurrent() (bool, error) {
	held, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat lock file: %w", err)
	}
	linked, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat lock path: %w", err)
	}
	return os.SameFile(held, linked), nil
}

func (l *FileLock) release() {
	_ = l.file.Close()
	l.file = nil
}

// Unlock removes the lock file while still holding the lock, then releases it.
// It is safe to call Unlock on an unlocked FileLock (no-op).
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	_ = os.Remove(l.path)
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}

	return nil
}

// IsLocked returns true if the lock is currently held by this instance.
func (l *FileLock) IsLocked() bool {
	return l.file != nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

func (l *FileLock) ensureFileExists() error {
	if l.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	l.file = file
	return nil
}
