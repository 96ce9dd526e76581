// Package singleinstance guarantees one resident VolcanoChat per user. A
// second launch would install a second keyboard tap and fight over the
// hotkeys, so it must refuse to start.
package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrAlreadyRunning reports that another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock is a held instance lock. Release on shutdown; the OS also releases
// it when the process dies, so a crash never wedges the next launch.
type Lock struct {
	f *os.File
}

// Acquire takes the per-user instance lock. Returns ErrAlreadyRunning when
// a live process holds it.
func Acquire() (*Lock, error) {
	path := lockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flock(f); err != nil {
		_ = f.Close()
		return nil, ErrAlreadyRunning
	}
	// Best effort; the pid is only for humans inspecting the file.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{f: f}, nil
}

// Release drops the lock. Safe on a nil receiver.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = funlock(l.f)
	_ = l.f.Close()
	l.f = nil
}

func lockPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "VolcanoChat", "instance.lock")
}
