package handlers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/providers/image"
	"studio/internal/storage"
)

const maxStyleUpload = 10 << 20

var styleNameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]{0,63}$`)

type styleImageDTO struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type styleDTO struct {
	Name   string          `json:"name"`
	Label  string          `json:"label"`
	Images []styleImageDTO `json:"images"`
}

func (a *App) listStyles() ([]styleDTO, error) {
	dirs, err := a.Styles.Dirs()
	if err != nil {
		return nil, err
	}
	styles := make([]styleDTO, 0, len(dirs))
	for _, dir := range dirs {
		keys, err := a.Styles.Images(dir)
		if err != nil {
			return nil, err
		}
		s := styleDTO{Name: dir, Label: image.StyleLabel(dir), Images: make([]styleImageDTO, 0, len(keys))}
		for _, key := range keys {
			s.Images = append(s.Images, styleImageDTO{Name: baseName(key), URL: "/styles/" + pathEscape(key)})
		}
		styles = append(styles, s)
	}
	return styles, nil
}

func (a *App) ListStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := a.listStyles()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": styles})
}

// UploadStyleImage stores a multipart "file" under the style folder, creating
// the folder when needed.
func (a *App) UploadStyleImage(w http.ResponseWriter, r *http.Request) {
	style := strings.TrimSpace(chi.URLParam(r, "style"))
	if !styleNameRegexp.MatchString(style) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid style name")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxStyleUpload+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if !storage.IsImageName(name) {
		a.error(w, http.StatusBadRequest, "bad_request", "only .png, .jpg, .jpeg and .webp files are accepted")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxStyleUpload+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read upload")
		return
	}
	if len(data) > maxStyleUpload {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds 10 MB")
		return
	}
	if sniffed := http.DetectContentType(data); !strings.HasPrefix(sniffed, "image/") {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("upload is %s, not an image", sniffed))
		return
	}

	key := style + "/" + name
	if a.Styles.Exists(key) {
		key = fmt.Sprintf("%s/%d-%s", style, a.now().UnixMilli(), name)
	}
	key, err = a.Styles.Write(r.Context(), key, data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("style", style).Str("key", key).Int("bytes", len(data)).Msg("style image uploaded")
	a.json(w, http.StatusCreated, styleImageDTO{Name: baseName(key), URL: "/styles/" + pathEscape(key)})
}

// styleImages returns the image names in a style folder, or fs.ErrNotExist.
func (a *App) styleImages(style string) ([]string, error) {
	if !styleNameRegexp.MatchString(style) {
		return nil, fs.ErrNotExist
	}
	keys, err := a.Styles.Images(style)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, baseName(key))
	}
	return names, nil
}
