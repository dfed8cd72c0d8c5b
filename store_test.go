package lbstats

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreMissingPrevious(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "not", "yet"))
	raw, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "", raw)
}

func TestSnapshotStoreSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stats")
	store := NewSnapshotStore(dir)

	require.NoError(t, store.Save("first"))
	require.NoError(t, store.Save("second"))
	raw, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", raw)

	files, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, previousFile, files[0].Name())
}

func TestSnapshotRoundTrip(t *testing.T) {
	raw := statTable(
		statRow("web", "FRONTEND", map[int]string{colRate: "50", colBytesIn: "8192"}),
		statRow("web", "srv1", map[int]string{colCurSessions: "5", colStatus: "UP"}),
		statRow("web", "BACKEND", map[int]string{colRate: "100", colBytesOut: "4096"}),
	)
	store := NewSnapshotStore(t.TempDir())
	require.NoError(t, store.Save(raw))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Parse(raw), Parse(loaded))
}

func TestSnapshotStoreLock(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	lock, err := store.Lock()
	require.NoError(t, err)

	_, err = store.Lock()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release())
	lock, err = store.Lock()
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}
