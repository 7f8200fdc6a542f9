//go:build !unix

package store

import (
	"errors"
	"os"
)

func (l *Lock) acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrLocked
		}
		return err
	}
	l.file = f
	return nil
}

func (l *Lock) release() error {
	closeErr := l.file.Close()
	return errors.Join(closeErr, os.Remove(l.path))
}
