package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"slices"
	"strings"

	"studio/internal/domain"
)

const maxStyleImages = 3

type generateRequest struct {
	Style       string   `json:"style"`
	Color       string   `json:"color"`
	Provider    string   `json:"provider"`
	Amazon      bool     `json:"amazon"`
	Caption     bool     `json:"caption"`
	Prompt      string   `json:"prompt"`
	StyleImages []string `json:"styleImages"`
}

// driverArgs validates the request against the style folder and renders the
// driver's command line.
func (a *App) driverArgs(req generateRequest) ([]string, error) {
	style := strings.TrimSpace(req.Style)
	available, err := a.styleImages(style)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(available) == 0) {
		return nil, fmt.Errorf("style %q has no reference images", style)
	}
	if err != nil {
		return nil, err
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = "gemini"
	}
	if provider != "gemini" && provider != "qwen" {
		return nil, fmt.Errorf("unknown provider %q", req.Provider)
	}
	if len(req.StyleImages) > maxStyleImages {
		return nil, fmt.Errorf("at most %d style images may be selected", maxStyleImages)
	}

	args := []string{"--style", style, "--provider", provider}
	if color := strings.TrimSpace(req.Color); color != "" {
		args = append(args, "--color", color)
	}
	if req.Amazon {
		args = append(args, "--amazon")
	}
	if req.Caption {
		args = append(args, "--caption")
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	for _, name := range req.StyleImages {
		if !slices.Contains(available, name) {
			return nil, fmt.Errorf("style image %q not found in %s", name, style)
		}
		args = append(args, "--style-image", name)
	}
	return args, nil
}

// Generate runs the generation driver once. Only one run may be in flight.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	args, err := a.driverArgs(req)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	select {
	case a.generateSlot <- struct{}{}:
		defer func() { <-a.generateSlot }()
	default:
		a.error(w, http.StatusConflict, "busy", "a generation is already running")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.Config.GenerateTimeout)
	defer cancel()

	start := a.now()
	out, err := a.Driver(ctx, args)
	if err != nil {
		var driverErr *DriverError
		if errors.As(err, &driverErr) {
			a.Logger.Error().Err(err).Int("exit_code", driverErr.ExitCode).Msg("generation driver failed")
			a.error(w, http.StatusBadGateway, "generation_failed", driverErr.Error())
			return
		}
		a.fail(w, r, err)
		return
	}

	img, ok := lastImageLine(out)
	if !ok {
		a.Logger.Warn().Msg("generation driver printed no record; falling back to newest gallery entry")
		images, err := a.Gallery.List(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if len(images) == 0 {
			a.error(w, http.StatusBadGateway, "generation_failed", "generation finished without a gallery record")
			return
		}
		img = images[0]
	}
	a.Logger.Info().
		Int64("image_id", img.ID).
		Str("style", img.Style).
		Dur("elapsed", a.now().Sub(start)).
		Msg("generation finished")
	a.json(w, http.StatusCreated, a.imageView(img))
}

// lastImageLine decodes the record the driver prints as its final stdout line.
func lastImageLine(out []byte) (domain.Image, bool) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var img domain.Image
		if err := json.Unmarshal(line, &img); err == nil && img.ID != 0 {
			return img, true
		}
	}
	return domain.Image{}, false
}
