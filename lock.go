package lbstats

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DirLock is an advisory flock held for the duration of one collector run.
type DirLock struct {
	file *os.File
}

func acquireLock(path string) (*DirLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, errors.Wrap(err, "flock")
	}
	return &DirLock{file: file}, nil
}

func (l *DirLock) Release() error {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrap(err, "release lock")
}
