// Package lock provides a cross-process exclusive lock on a repository
// directory. The lock is reentrant within a process: nested acquisitions
// only increment a counter and the file lock is released by the outermost
// Release.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileName is the name of the lock file created in the locked directory.
const DefaultFileName = "metadata.pb.lock"

// DefaultPollInterval is the delay between attempts while another process
// holds the lock.
const DefaultPollInterval = 500 * time.Millisecond

// ErrNotHeld is returned when releasing a lock that is not held.
var ErrNotHeld = errors.New("lock not held")

// errWouldBlock is returned by tryLock when another process holds the lock.
var errWouldBlock = errors.New("lock held by another process")

// AcquireError indicates the lock file could not be opened or locked for a
// reason other than contention. It is not retried.
type AcquireError struct {
	Path string
	Err  error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("unable to acquire lock %s: %v", e.Path, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// Option configures a Lock.
type Option func(*Lock)

// WithPollInterval sets the retry interval while the lock is contended.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithFileName overrides the lock file name.
func WithFileName(name string) Option {
	return func(l *Lock) {
		if name != "" {
			l.name = name
		}
	}
}

// Lock is an exclusive advisory lock on a file in a directory.
type Lock struct {
	dir  string
	name string
	poll time.Duration

	mu    sync.Mutex
	depth int
	file  *os.File
}

// New creates a lock on dir. The lock file is not touched until Acquire.
func New(dir string, opts ...Option) *Lock {
	l := &Lock{
		dir:  dir,
		name: DefaultFileName,
		poll: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return filepath.Join(l.dir, l.name)
}

// Depth returns the current nesting depth. Zero means not held.
func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Acquire obtains the lock, waiting while another process holds it.
// It blocks until the lock is granted, ctx is done, or a non-contention
// error occurs.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 {
		l.depth++
		return nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return &AcquireError{Path: l.Path(), Err: err}
	}

	f, err := os.OpenFile(l.Path(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return &AcquireError{Path: l.Path(), Err: err}
	}

	for {
		err := tryLock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) {
			_ = f.Close()
			return &AcquireError{Path: l.Path(), Err: err}
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = f.Close()
			return &AcquireError{Path: l.Path(), Err: ctx.Err()}
		case <-timer.C:
		}
	}

	l.file = f
	l.depth = 1
	return nil
}

// Release undoes one Acquire. The outermost release unlocks and closes the
// lock file.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 {
		return ErrNotHeld
	}
	l.depth--
	if l.depth > 0 {
		return nil
	}

	f := l.file
	l.file = nil
	unlockErr := unlock(f)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.Path(), unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", l.Path(), closeErr)
	}
	return nil
}

// With runs fn while holding the lock.
func (l *Lock) With(ctx context.Context, fn func() error) (err error) {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
