package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure ProcessLock implements the interface.
var _ driven.ProcessLock = (*ProcessLock)(nil)

// LockFile is the lock filename inside the data directory.
const LockFile = "processing.lock"

// shareRetry is how often Share retries while the lock is held exclusively.
const shareRetry = 50 * time.Millisecond

// errModeHeld is returned when the lock is asked for in the other mode than
// the one this process holds. Converting an flock is not atomic, so it is
// never attempted.
var errModeHeld = errors.New("lock already held in another mode")

type lockMode int

const (
	unlocked lockMode = iota
	shared
	exclusive
)

// ProcessLock is an advisory lock on a file, shared or exclusive. The
// operating system drops it when the owning process exits. An exclusive
// holder writes its pid into the file for anyone inspecting it.
type ProcessLock struct {
	path string

	mu   sync.Mutex
	file *os.File
	mode lockMode
}

// NewProcessLock returns a lock on the file at path. Nothing is opened
// until the lock is taken.
func NewProcessLock(path string) *ProcessLock {
	return &ProcessLock{path: path}
}

// Path returns the lock file path.
func (l *ProcessLock) Path() string {
	return l.path
}

// TryLock takes the lock exclusively if no other process holds it.
func (l *ProcessLock) TryLock() (bool, error) {
	ok, err := l.take(exclusive)
	if err != nil || !ok {
		return ok, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Truncate(0); err == nil {
		_, _ = l.file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return true, nil
}

// Share takes the lock shared, retrying until no process holds it
// exclusively or ctx is done.
func (l *ProcessLock) Share(ctx context.Context) error {
	ticker := time.NewTicker(shareRetry)
	defer ticker.Stop()

	for {
		ok, err := l.take(shared)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *ProcessLock) take(mode lockMode) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.mode {
	case mode:
		return true, nil
	case unlocked:
	default:
		return false, fmt.Errorf("%s: %w", l.path, errModeHeld)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, fmt.Errorf("opening lock file: %w", err)
	}

	locked, err := lockFile(f, mode == exclusive)
	if err != nil || !locked {
		f.Close()
		return false, err
	}
	l.file = f
	l.mode = mode
	return true, nil
}

// Unlock releases the lock if this process holds it.
func (l *ProcessLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	l.mode = unlocked

	if err := unlockFile(f); err != nil {
		f.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return f.Close()
}
