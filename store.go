package lbstats

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	previousFile = "previous"
	lockFile     = ".lock"
)

// SnapshotStore keeps the raw text of the last run in <dir>/previous.
type SnapshotStore struct {
	Dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{Dir: dir}
}

func (s *SnapshotStore) path() string {
	return filepath.Join(s.Dir, previousFile)
}

func (s *SnapshotStore) ensureDir() error {
	return errors.Wrapf(os.MkdirAll(s.Dir, 0755), "create data dir %s", s.Dir)
}

// Load returns the previous snapshot, or "" when none was saved yet.
func (s *SnapshotStore) Load() (string, error) {
	data, err := ioutil.ReadFile(s.path())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read previous snapshot")
	}
	return string(data), nil
}

// Save replaces the previous snapshot. The text goes to a temp file first and
// is renamed into place, so readers never see a partial snapshot.
func (s *SnapshotStore) Save(raw string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(s.Dir, previousFile+".*")
	if err != nil {
		return errors.Wrap(err, "create snapshot temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path()), "rename snapshot")
}

// Lock takes the data dir lock; ErrLocked means another run is in progress.
func (s *SnapshotStore) Lock() (*DirLock, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	return acquireLock(filepath.Join(s.Dir, lockFile))
}
