// Package filelock provides advisory, cross-process exclusive file locking
// used by the artifact store to guarantee at-most-one concurrent unpack per
// content hash.
package filelock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by TryAcquire when the lock is already held elsewhere.
var ErrLocked = errors.New("filelock: already locked")

// Lock holds an open, flock'd file. The lock is released by Close.
type Lock struct {
	f *os.File
}

// Acquire blocks until it obtains an exclusive lock on a file at path,
// creating the file if necessary; its parent directory is not created and
// must already exist. The returned Lock must be closed to release it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: opening %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("filelock: locking %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// TryAcquire attempts to obtain an exclusive lock without blocking. It
// returns ErrLocked if another holder already has it.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filelock: opening %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("filelock: locking %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Close releases the lock and closes the underlying file descriptor.
func (l *Lock) Close() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("filelock: unlocking: %w", err)
	}
	return l.f.Close()
}
