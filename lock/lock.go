// Package lock serializes the "start a worker if none is running" step
// across concurrent wrapper invocations.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/rubocop-daemon/wrapper/logger"
)

// Lock is an exclusive advisory lock on a file. Release is safe to call
// more than once and from a deferred call.
type Lock struct {
	fl   *flock.Flock
	once sync.Once
	err  error
}

// Acquire blocks until an exclusive flock(2) on path is held. The file and
// its parent directory are created if absent. Waiting callers sleep in the
// kernel; there is no polling and no timeout.
//
// Release unlinks the file, so a waiter can wake up holding a lock on a
// file that is no longer at path. Acquire then starts over on whatever file
// path names now.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	for {
		fl := flock.New(path)
		if err := fl.Lock(); err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
		}
		current, err := isCurrent(fl)
		if err != nil {
			fl.Unlock()
			return nil, err
		}
		if current {
			logger.WithComponent("lock").Debug("lock acquired", "path", path)
			return &Lock{fl: fl}, nil
		}
		fl.Unlock()
	}
}

// TryAcquire attempts to take the lock without blocking. It returns
// (nil, false, nil) when another holder has it.
func TryAcquire(path string) (*Lock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, false, fmt.Errorf("creating lock dir: %w", err)
	}

	for {
		fl := flock.New(path)
		ok, err := fl.TryLock()
		if err != nil {
			return nil, false, fmt.Errorf("acquiring lock %s: %w", path, err)
		}
		if !ok {
			fl.Close()
			return nil, false, nil
		}
		current, err := isCurrent(fl)
		if err != nil {
			fl.Unlock()
			return nil, false, err
		}
		if current {
			return &Lock{fl: fl}, true, nil
		}
		fl.Unlock()
	}
}

// isCurrent reports whether the locked file is still the one at its path.
func isCurrent(fl *flock.Flock) (bool, error) {
	held, err := fl.Stat()
	if err != nil {
		return false, fmt.Errorf("stat locked file %s: %w", fl.Path(), err)
	}
	onDisk, err := os.Stat(fl.Path())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat lock file %s: %w", fl.Path(), err)
	}
	return os.SameFile(held, onDisk), nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release removes the lock file and drops the lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		path := l.fl.Path()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.err = fmt.Errorf("removing lock file %s: %w", path, err)
		}
		if err := l.fl.Unlock(); err != nil && l.err == nil {
			l.err = fmt.Errorf("releasing lock %s: %w", path, err)
		}
		logger.WithComponent("lock").Debug("lock released", "path", path)
	})
	return l.err
}
