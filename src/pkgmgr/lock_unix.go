//go:build unix

package pkgmgr

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckoutLock is an advisory lock over one dependency's checkout
// directory, held for the duration of a fetch so two concurrent resolutions
// targeting the same checkout never interleave writes.
type CheckoutLock struct {
	file *os.File
}

// LockCheckout opens (creating if necessary) dir's lock file and takes an
// exclusive advisory lock on unix via flock(2).
func LockCheckout(dir string) (*CheckoutLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("I/O error: creating checkout directory %s: %w", dir, err)
	}
	path := dir + "/.lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("I/O error: opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("I/O error: locking %s: %w", path, err)
	}
	return &CheckoutLock{file: f}, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *CheckoutLock) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("I/O error: unlocking %s: %w", l.file.Name(), err)
	}
	return l.file.Close()
}
