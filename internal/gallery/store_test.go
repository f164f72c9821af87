package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.FileStore, string) {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewFileStore(filepath.Join(root, "output"))
	require.NoError(t, err)
	path := filepath.Join(root, "data", "gallery.json")
	store := NewStore(path, files)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store, files, path
}

func seed(t *testing.T, store *Store, filename string) domain.Image {
	t.Helper()
	img, err := store.Create(context.Background(), domain.Image{
		Filename: filename,
		Style:    "pashmina",
		Caption:  "Soft neutrals for everyday wear",
		Provider: "gemini",
	})
	require.NoError(t, err)
	return img
}

func TestListEmptyWhenDocumentMissing(t *testing.T) {
	store, _, _ := newTestStore(t)
	images, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestCreateAssignsUniqueIDsNewestFirst(t *testing.T) {
	store, _, _ := newTestStore(t)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	first, err := store.Create(context.Background(), domain.Image{Filename: "a.png", CreatedAt: at})
	require.NoError(t, err)
	second, err := store.Create(context.Background(), domain.Image{Filename: "b.png", CreatedAt: at})
	require.NoError(t, err)

	assert.Equal(t, at.UnixMilli(), first.ID)
	assert.Equal(t, at.UnixMilli()+1, second.ID)

	images, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, second.ID, images[0].ID)
	assert.False(t, images[0].Favorited)
	assert.False(t, images[0].PostedToInstagram)
}

func TestCreateRequiresFilename(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Create(context.Background(), domain.Image{})
	assert.Error(t, err)
}

func TestToggleFavoriteTwiceIsByteIdentical(t *testing.T) {
	store, _, path := newTestStore(t)
	img := seed(t, store, "a.png")
	seed(t, store, "b.png")

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	toggled, err := store.ToggleFavorite(context.Background(), img.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Favorited)

	restored, err := store.ToggleFavorite(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, img, restored)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSetCaptionAndMarkPosted(t *testing.T) {
	store, _, _ := newTestStore(t)
	img := seed(t, store, "a.png")

	updated, err := store.SetCaption(context.Background(), img.ID, "New caption")
	require.NoError(t, err)
	assert.Equal(t, "New caption", updated.Caption)

	postedAt := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	posted, err := store.MarkPosted(context.Background(), img.ID, postedAt)
	require.NoError(t, err)
	assert.True(t, posted.PostedToInstagram)
	require.NotNil(t, posted.PostedAt)
	assert.True(t, postedAt.Equal(*posted.PostedAt))

	got, err := store.Get(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, "New caption", got.Caption)
	assert.True(t, got.PostedToInstagram)
}

func TestMutationsReportNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	seed(t, store, "a.png")
	ctx := context.Background()

	_, err := store.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.ToggleFavorite(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.SetCaption(ctx, 42, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.MarkPosted(ctx, 42, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Delete(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteRemovesRecordAndFile(t *testing.T) {
	store, files, _ := newTestStore(t)
	key, err := files.Write(context.Background(), "pashmina_1.png", []byte("png"))
	require.NoError(t, err)
	img := seed(t, store, key)

	_, err = store.Delete(context.Background(), img.ID)
	require.NoError(t, err)
	assert.False(t, files.Exists(key))

	images, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestDeleteWithMissingFileStillRemovesRecord(t *testing.T) {
	store, _, _ := newTestStore(t)
	img := seed(t, store, "already-gone.png")

	removed, err := store.Delete(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, removed.ID)

	_, err = store.Get(context.Background(), img.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFavorites(t *testing.T) {
	store, _, _ := newTestStore(t)
	a := seed(t, store, "a.png")
	seed(t, store, "b.png")
	_, err := store.ToggleFavorite(context.Background(), a.ID)
	require.NoError(t, err)

	favs, err := store.Favorites(context.Background())
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, a.ID, favs[0].ID)
}

func TestConcurrentMutationsAreNotLost(t *testing.T) {
	store, _, _ := newTestStore(t)
	var ids []int64
	for i := 0; i < 10; i++ {
		ids = append(ids, seed(t, store, fmt.Sprintf("%d.png", i)).ID)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			_, err := store.ToggleFavorite(context.Background(), id)
			assert.NoError(t, err)
		}(id)
		go func(i int, id int64) {
			defer wg.Done()
			_, err := store.SetCaption(context.Background(), id, fmt.Sprintf("caption %d", i))
			assert.NoError(t, err)
		}(i, id)
	}
	wg.Wait()

	images, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, images, len(ids))
	for _, img := range images {
		assert.True(t, img.Favorited, "image %d lost its favourite", img.ID)
		assert.Contains(t, img.Caption, "caption ")
	}
}

func TestStoresSharingADocumentDoNotLoseWrites(t *testing.T) {
	driver, _, path := newTestStore(t)
	dashboard := NewStore(path, nil)
	target := seed(t, driver, "target.png")

	const n = 100
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := driver.Create(context.Background(), domain.Image{Filename: fmt.Sprintf("run-%d.png", i)})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := dashboard.ToggleFavorite(context.Background(), target.ID)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	images, err := dashboard.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, images, n+1)
	got, err := driver.Get(context.Background(), target.ID)
	require.NoError(t, err)
	assert.False(t, got.Favorited, "an even number of toggles must restore the flag")
}

func TestDeleteKeepsFileWhenDocumentWriteFails(t *testing.T) {
	store, files, _ := newTestStore(t)
	key, err := files.Write(context.Background(), "keep.png", []byte("png"))
	require.NoError(t, err)
	img := seed(t, store, key)

	store.replace = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	_, err = store.Delete(context.Background(), img.ID)
	require.Error(t, err)
	assert.True(t, files.Exists(key))
}

type failingRemover struct{}

func (failingRemover) Remove(string) error { return errors.New("permission denied") }

func TestDeleteLogsFileRemovalFailure(t *testing.T) {
	store, _, path := newTestStore(t)
	img := seed(t, store, "stuck.png")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	other := NewStore(path, failingRemover{}).WithLogger(&logger)

	removed, err := other.Delete(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, removed.ID)
	assert.Contains(t, buf.String(), "image file remains")

	_, err = store.Get(context.Background(), img.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelledContextSkipsLock(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Create(ctx, domain.Image{Filename: "a.png"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorruptDocumentIsAnIOError(t *testing.T) {
	store, _, path := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
