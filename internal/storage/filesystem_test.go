package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSanitizesKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key, err := store.Write(context.Background(), "/./pashmina/../pashmina/a.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "pashmina/a.png", key)
	assert.True(t, store.Exists(key))

	_, err = store.Write(context.Background(), "../escape.png", []byte("x"))
	assert.Error(t, err)
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Write(ctx, "a.png", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Remove("missing.png"))

	key, err := store.Write(context.Background(), "a.png", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, store.Remove(key))
	assert.False(t, store.Exists(key))
}

func TestDirsAndImages(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	for _, key := range []string{"segi-empat/b.jpg", "segi-empat/a.png", "segi-empat/notes.txt", "pashmina/c.webp"} {
		_, err := store.Write(context.Background(), key, []byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0o755))

	dirs, err := store.Dirs()
	require.NoError(t, err)
	assert.Equal(t, []string{"pashmina", "segi-empat"}, dirs)

	images, err := store.Images("segi-empat")
	require.NoError(t, err)
	assert.Equal(t, []string{"segi-empat/a.png", "segi-empat/b.jpg"}, images)
}

func TestMIMEFromName(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMEFromName("a.JPG"))
	assert.Equal(t, "image/webp", MIMEFromName("a.webp"))
	assert.Equal(t, "image/png", MIMEFromName("a.png"))
}

func TestReplaceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	require.NoError(t, ReplaceFile(path, []byte(`{"a":1}`), 0o600))
	require.NoError(t, ReplaceFile(path, []byte(`{"a":2}`), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}
