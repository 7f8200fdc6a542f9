package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ErrLocked is returned by Lock when another process holds the package lock.
var ErrLocked = errors.New("package is locked by another bitey process")

// Lock is an exclusive per-package lock backed by a file under
// <root>/.locks. The lock directory lives outside the package directory so
// an install can remove and recreate the package directory while holding it.
type Lock struct {
	Token string
	path  string
	file  *os.File
}

func (s *store) Lock(name string) (*Lock, error) {
	if err := s.EnsureDir(locksDir); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	l := &Lock{
		Token: uuid.NewString(),
		path:  s.Path(locksDir, name+".lock"),
	}
	if err := l.acquire(); err != nil {
		return nil, fmt.Errorf("locking %q: %w", name, err)
	}

	// Record who holds the lock; purely diagnostic.
	fmt.Fprintf(l.file, "%s %d\n", l.Token, os.Getpid())

	return l, nil
}

// Release drops the lock. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.release()
	l.file = nil
	return err
}
