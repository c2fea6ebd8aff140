package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID   uint
	Name string
}

func TestRunWritesSnapshotAndPrunes(t *testing.T) {
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "live.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create(&row{Name: "kept"}).Error)

	b := New(db, Config{Driver: "sqlite", Dir: filepath.Join(dir, "backups"), Keep: 2})
	clock := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	var last string
	for i := 0; i < 3; i++ {
		last, err = b.Run(context.Background())
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	snap, err := gorm.Open(sqlite.Open(last), &gorm.Config{})
	require.NoError(t, err)
	var got row
	require.NoError(t, snap.First(&got).Error)
	assert.Equal(t, "kept", got.Name)
}

func TestRunRejectsServerDrivers(t *testing.T) {
	b := New(nil, Config{Driver: "postgres", Dir: t.TempDir()})
	_, err := b.Run(context.Background())
	assert.Error(t, err)
}

type memStore struct {
	objects map[string][]byte
	fail    error
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.fail != nil {
		return m.fail
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestRunUploadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "live.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	remote := &memStore{objects: map[string][]byte{}}
	b := New(db, Config{Driver: "sqlite", Dir: filepath.Join(dir, "backups")}).WithRemote(remote)
	path, err := b.Run(context.Background())
	require.NoError(t, err)

	local, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, local, remote.objects[filepath.Base(path)])

	remote.fail = errors.New("bucket offline")
	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	path, err = b.Run(context.Background())
	assert.Error(t, err)
	assert.FileExists(t, path)
}
