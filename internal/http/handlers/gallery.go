package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/storage"
	"studio/pkg/zip"
)

type imageDTO struct {
	domain.Image
	URL       string `json:"url"`
	FileFound bool   `json:"fileFound"`
}

func (a *App) imageView(img domain.Image) imageDTO {
	return imageDTO{
		Image:     img,
		URL:       "/output/" + pathEscape(img.Filename),
		FileFound: a.Output.Exists(img.Filename),
	}
}

func (a *App) ListGallery(w http.ResponseWriter, r *http.Request) {
	images, err := a.Gallery.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("favorites") == "true" {
		filtered := images[:0]
		for _, img := range images {
			if img.Favorited {
				filtered = append(filtered, img)
			}
		}
		images = filtered
	}
	items := make([]imageDTO, 0, len(images))
	for _, img := range images {
		items = append(items, a.imageView(img))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	img, err := a.Gallery.ToggleFavorite(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.imageView(img))
}

type captionRequest struct {
	Caption string `json:"caption"`
}

func (a *App) UpdateCaption(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	var req captionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	img, err := a.Gallery.SetCaption(r.Context(), id, strings.TrimSpace(req.Caption))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.imageView(img))
}

func (a *App) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	img, err := a.Gallery.Delete(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Int64("image_id", id).Str("filename", img.Filename).Msg("gallery image deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) DownloadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	img, err := a.Gallery.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.Output.Exists(img.Filename) {
		a.error(w, http.StatusNotFound, "file_missing", fmt.Sprintf("image file %s is missing", img.Filename))
		return
	}
	path, err := a.Output.Path(img.Filename)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", baseName(img.Filename)))
	w.Header().Set("Content-Type", storage.MIMEFromName(img.Filename))
	http.ServeFile(w, r, path)
}

// ExportFavorites streams every favourited image that still has a file as a zip.
func (a *App) ExportFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := a.Gallery.Favorites(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entries := make([]zip.Entry, 0, len(favorites))
	for _, img := range favorites {
		data, err := a.Output.Read(img.Filename)
		if err != nil {
			a.Logger.Warn().Err(err).Int64("image_id", img.ID).Msg("export: skipping missing file")
			continue
		}
		entries = append(entries, zip.Entry{Filename: img.Filename, Modified: img.CreatedAt, Data: data})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no favourited images to export")
		return
	}
	name := fmt.Sprintf("favorites-%s.zip", a.now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := zip.Write(w, entries); err != nil {
		a.Logger.Error().Err(err).Msg("export: write archive")
	}
}

func baseName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
