package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLocalStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "audio")
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	src := writeTemp(t, t.TempDir(), "encoded.mp3", "ID3 fake mp3")

	location, err := store.Put(ctx, "abc.mp3", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "abc.mp3"), location)
	assert.NoFileExists(t, src, "Put moves the source file")

	obj, err := store.Open(ctx, location)
	require.NoError(t, err)
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())
	assert.Equal(t, "ID3 fake mp3", string(data))
	assert.Equal(t, int64(len(data)), obj.Size)

	require.NoError(t, store.Delete(ctx, location))
	_, err = store.Open(ctx, location)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting again is fine.
	assert.NoError(t, store.Delete(ctx, location))
}

func TestLocalStore_RejectsBadKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	src := writeTemp(t, t.TempDir(), "x.mp3", "x")

	for _, key := range []string{"", "..", "../escape.mp3", "nested/key.mp3"} {
		_, err := store.Put(context.Background(), key, src)
		assert.Error(t, err, "key %q", key)
	}
	assert.FileExists(t, src)
}

func TestLocalStore_OpenDirectoryIsNotFound(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	_, err = store.Open(context.Background(), root)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := writeTemp(t, dir, "a.mp3", "payload")
	dst := filepath.Join(dir, "b.mp3")

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	assert.Error(t, copyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "c.mp3")))
	assert.NoFileExists(t, filepath.Join(dir, "c.mp3"))
}

func TestWatchLocal_ReportsRemovedMP3(t *testing.T) {
	dir := t.TempDir()
	keep := writeTemp(t, dir, "notes.txt", "x")
	song := writeTemp(t, dir, "song.mp3", "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removed := make(chan string, 4)
	require.NoError(t, WatchLocal(ctx, dir, func(path string) { removed <- path }))

	require.NoError(t, os.Remove(keep))
	require.NoError(t, os.Remove(song))

	select {
	case got := <-removed:
		assert.Equal(t, song, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no removal reported")
	}
}

func TestWatchLocal_MissingDir(t *testing.T) {
	err := WatchLocal(context.Background(), filepath.Join(t.TempDir(), "nope"), func(string) {})
	assert.Error(t, err)
}

func TestRemoveSource(t *testing.T) {
	dir := t.TempDir()

	// Missing files are ignored.
	removeSource(filepath.Join(dir, "gone.mp3"))

	// A non-empty directory cannot be removed; the failure is only logged.
	busy := filepath.Join(dir, "busy")
	require.NoError(t, os.MkdirAll(filepath.Join(busy, "child"), 0755))
	removeSource(busy)
	assert.DirExists(t, busy)

	src := writeTemp(t, dir, "done.mp3", "x")
	removeSource(src)
	assert.NoFileExists(t, src)
}
