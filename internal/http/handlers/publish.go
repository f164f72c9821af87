package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"studio/internal/domain"
)

type publishRequest struct {
	Caption *string `json:"caption,omitempty"`
}

type publishResponse struct {
	MediaID string   `json:"mediaId"`
	Image   imageDTO `json:"image"`
}

// PublishImage posts a gallery image to Instagram and marks it posted. A
// caption in the body replaces the stored one first.
func (a *App) PublishImage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.imageID(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	img, err := a.Gallery.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Caption != nil {
		caption := strings.TrimSpace(*req.Caption)
		if caption == "" {
			a.fail(w, r, domain.ErrEmptyCaption)
			return
		}
		if caption != img.Caption {
			if img, err = a.Gallery.SetCaption(r.Context(), id, caption); err != nil {
				a.fail(w, r, err)
				return
			}
		}
	}
	if !a.Output.Exists(img.Filename) {
		a.error(w, http.StatusNotFound, "file_missing", "image file "+img.Filename+" is missing")
		return
	}

	imageURL := a.Config.BaseURL() + "/output/" + pathEscape(img.Filename)
	mediaID, err := a.Publisher.Publish(r.Context(), imageURL, img.Caption)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	posted, err := a.Gallery.MarkPosted(r.Context(), id, a.now())
	if err != nil {
		a.Logger.Error().Err(err).Int64("image_id", id).Str("media_id", mediaID).Msg("published but failed to mark posted")
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Int64("image_id", id).Str("media_id", mediaID).Msg("image published to instagram")
	a.json(w, http.StatusOK, publishResponse{MediaID: mediaID, Image: a.imageView(posted)})
}

func pathEscape(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
