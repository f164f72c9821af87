// Package gallery persists generated images as a single JSON document.
//
// Every mutation re-reads the whole document, changes it in memory and writes
// it back through an atomic replace. The read-modify-write runs under a mutex
// and an advisory lock on a sidecar file, so neither concurrent handlers nor
// the generation driver process can lose each other's updates.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/storage"
)

const lockRetryDelay = 10 * time.Millisecond

// FileRemover deletes the image file backing a record.
type FileRemover interface {
	Remove(key string) error
}

// Store is the gallery document on disk.
type Store struct {
	path    string
	files   FileRemover
	logger  *infra.Logger
	now     func() time.Time
	replace func(path string, data []byte, perm os.FileMode) error

	mu   sync.Mutex
	lock *flock.Flock
}

// NewStore returns a store for the document at path. files may be nil when
// the caller never deletes (the generation driver).
func NewStore(path string, files FileRemover) *Store {
	path = strings.TrimSpace(path)
	return &Store{
		path:    path,
		files:   files,
		logger:  infra.NopLogger(),
		now:     time.Now,
		replace: storage.ReplaceFile,
		lock:    flock.New(path + ".lock"),
	}
}

// WithLogger sets where non-fatal problems, such as a leftover image file,
// are reported.
func (s *Store) WithLogger(logger *infra.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// List returns every image, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Image, error) {
	var doc domain.GalleryDocument
	err := s.locked(ctx, false, func() error {
		var err error
		doc, err = s.read()
		return err
	})
	if err != nil {
		return nil, err
	}
	images := append([]domain.Image(nil), doc.Images...)
	sort.SliceStable(images, func(i, j int) bool { return images[i].ID > images[j].ID })
	return images, nil
}

// Favorites returns favourited images, newest first.
func (s *Store) Favorites(ctx context.Context) ([]domain.Image, error) {
	images, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := images[:0]
	for _, img := range images {
		if img.Favorited {
			out = append(out, img)
		}
	}
	return out, nil
}

// Get returns the image with id or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (domain.Image, error) {
	var img domain.Image
	err := s.locked(ctx, false, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		idx := indexOf(doc.Images, id)
		if idx < 0 {
			return domain.ErrNotFound
		}
		img = doc.Images[idx]
		return nil
	})
	return img, err
}

// Create appends img. The id is derived from the creation time in
// milliseconds and bumped until it is unique.
func (s *Store) Create(ctx context.Context, img domain.Image) (domain.Image, error) {
	if strings.TrimSpace(img.Filename) == "" {
		return domain.Image{}, errors.New("gallery: filename is required")
	}
	err := s.update(ctx, func(doc *domain.GalleryDocument) error {
		if img.CreatedAt.IsZero() {
			img.CreatedAt = s.now().UTC()
		}
		img.ID = img.CreatedAt.UnixMilli()
		for indexOf(doc.Images, img.ID) >= 0 {
			img.ID++
		}
		doc.Images = append(doc.Images, img)
		return nil
	})
	if err != nil {
		return domain.Image{}, err
	}
	return img, nil
}

// ToggleFavorite flips the favourited flag.
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (domain.Image, error) {
	return s.mutate(ctx, id, func(img *domain.Image) {
		img.Favorited = !img.Favorited
	})
}

// SetCaption replaces the caption text.
func (s *Store) SetCaption(ctx context.Context, id int64, caption string) (domain.Image, error) {
	return s.mutate(ctx, id, func(img *domain.Image) {
		img.Caption = caption
	})
}

// MarkPosted records a successful Instagram publish.
func (s *Store) MarkPosted(ctx context.Context, id int64, at time.Time) (domain.Image, error) {
	return s.mutate(ctx, id, func(img *domain.Image) {
		posted := at.UTC()
		img.PostedToInstagram = true
		img.PostedAt = &posted
	})
}

// Delete removes the record, then its image file. The file goes only once
// the document is written; a file that is already gone or cannot be removed
// does not undo the delete.
func (s *Store) Delete(ctx context.Context, id int64) (domain.Image, error) {
	var removed domain.Image
	err := s.update(ctx, func(doc *domain.GalleryDocument) error {
		idx := indexOf(doc.Images, id)
		if idx < 0 {
			return domain.ErrNotFound
		}
		removed = doc.Images[idx]
		doc.Images = append(doc.Images[:idx], doc.Images[idx+1:]...)
		return nil
	})
	if err != nil {
		return domain.Image{}, err
	}
	if s.files != nil && removed.Filename != "" {
		if err := s.files.Remove(removed.Filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).
				Int64("image_id", removed.ID).
				Str("filename", removed.Filename).
				Msg("gallery: record deleted but image file remains")
		}
	}
	return removed, nil
}

func (s *Store) mutate(ctx context.Context, id int64, fn func(*domain.Image)) (domain.Image, error) {
	var out domain.Image
	err := s.update(ctx, func(doc *domain.GalleryDocument) error {
		idx := indexOf(doc.Images, id)
		if idx < 0 {
			return domain.ErrNotFound
		}
		fn(&doc.Images[idx])
		out = doc.Images[idx]
		return nil
	})
	return out, err
}

func (s *Store) update(ctx context.Context, fn func(*domain.GalleryDocument) error) error {
	return s.locked(ctx, true, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}
		return s.write(doc)
	})
}

// locked runs fn holding the in-process mutex and the cross-process file
// lock, exclusive for writers and shared for readers.
func (s *Store) locked(ctx context.Context, exclusive bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("gallery: ensure directory: %w", err)
	}
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("gallery: lock document: %w", err)
	}
	if !ok {
		return errors.New("gallery: lock document: not acquired")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("gallery: unlock document")
		}
	}()
	return fn()
}

func (s *Store) read() (domain.GalleryDocument, error) {
	var doc domain.GalleryDocument
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.GalleryDocument{Images: []domain.Image{}}, nil
		}
		return doc, fmt.Errorf("gallery: read document: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return domain.GalleryDocument{Images: []domain.Image{}}, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("gallery: decode document: %w", err)
	}
	if doc.Images == nil {
		doc.Images = []domain.Image{}
	}
	return doc, nil
}

func (s *Store) write(doc domain.GalleryDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("gallery: encode document: %w", err)
	}
	return s.replace(s.path, raw, 0o644)
}

func indexOf(images []domain.Image, id int64) int {
	for i := range images {
		if images[i].ID == id {
			return i
		}
	}
	return -1
}
