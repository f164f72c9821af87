// Package generation performs one driver run: load style references, call an
// image provider, store the result and append a gallery record.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/providers/caption"
	"studio/internal/providers/image"
	"studio/internal/storage"
)

// MaxReferences caps how many style images go to a provider in one run.
const MaxReferences = 3

// AspectRatio is the portrait feed ratio every run targets.
const AspectRatio = "4:5"

// ErrNoReferences means the style folder has nothing to send.
var ErrNoReferences = errors.New("style has no reference images")

// Options are the driver flags.
type Options struct {
	Style       string
	Color       string
	Amazon      bool
	Caption     bool
	Prompt      string
	StyleImages []string
}

// Runner holds the collaborators of a run.
type Runner struct {
	Styles    *storage.FileStore
	Output    *storage.FileStore
	Gallery   *gallery.Store
	Generator image.Generator
	Captions  caption.Writer
	Logger    *infra.Logger

	now   func() time.Time
	newID func() string
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Runner) id() string {
	if r.newID != nil {
		return r.newID()
	}
	return uuid.NewString()
}

func (r *Runner) logger() *infra.Logger {
	if r.Logger == nil {
		return infra.NopLogger()
	}
	return r.Logger
}

// Run generates one image and returns the gallery record it appended.
func (r *Runner) Run(ctx context.Context, opts Options) (domain.Image, error) {
	style := strings.TrimSpace(opts.Style)
	if style == "" {
		return domain.Image{}, errors.New("--style is required")
	}
	refs, err := r.references(style, opts.StyleImages)
	if err != nil {
		return domain.Image{}, err
	}

	prompt := image.BuildCompositePrompt(image.PromptOptions{
		Style:      style,
		Color:      opts.Color,
		Amazon:     opts.Amazon,
		Custom:     opts.Prompt,
		References: len(refs),
	})
	requestID := r.id()
	log := r.logger().With().
		Str("request_id", requestID).
		Str("style", style).
		Str("provider", r.Generator.Name()).
		Int("references", len(refs)).
		Logger()

	start := r.clock()
	log.Info().Msg("generating image")
	asset, err := r.Generator.Generate(ctx, image.GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: image.DefaultNegativePrompt,
		AspectRatio:    AspectRatio,
		RequestID:      requestID,
		References:     refs,
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("%s: %w", r.Generator.Name(), err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return domain.Image{}, fmt.Errorf("%s: %w: empty image", r.Generator.Name(), domain.ErrProviderFailure)
	}

	filename := fmt.Sprintf("%s-%s%s", style, requestID, asset.Ext())
	filename, err = r.Output.Write(ctx, filename, asset.Data)
	if err != nil {
		return domain.Image{}, err
	}
	log.Info().
		Str("filename", filename).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Dur("elapsed", r.clock().Sub(start)).
		Msg("image stored")

	text := ""
	if opts.Caption && r.Captions != nil {
		res, err := r.Captions.Write(ctx, caption.Request{
			Image: asset.Data,
			MIME:  asset.Format,
			Style: style,
			Color: opts.Color,
		})
		if err != nil {
			log.Warn().Err(err).Msg("caption generation failed, saving without caption")
		} else {
			text = res.Text
			log.Info().Str("caption_provider", res.Provider).Str("fallback_reason", res.FallbackReason).Msg("caption written")
		}
	}

	img, err := r.Gallery.Create(ctx, domain.Image{
		Filename:  filename,
		Style:     style,
		Caption:   text,
		Provider:  r.Generator.Name(),
		CreatedAt: r.clock().UTC(),
	})
	if err != nil {
		if rmErr := r.Output.Remove(filename); rmErr != nil {
			log.Warn().Err(rmErr).Str("filename", filename).Msg("could not remove orphaned image")
		}
		return domain.Image{}, err
	}
	return img, nil
}

// references loads the named style images, or the first MaxReferences in the
// folder when none are named.
func (r *Runner) references(style string, names []string) ([]image.Reference, error) {
	var keys []string
	if len(names) == 0 {
		all, err := r.Styles.Images(style)
		if err != nil {
			return nil, fmt.Errorf("style %q: %w", style, err)
		}
		if len(all) > MaxReferences {
			all = all[:MaxReferences]
		}
		keys = all
	} else {
		if len(names) > MaxReferences {
			return nil, fmt.Errorf("at most %d style images may be selected", MaxReferences)
		}
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || strings.ContainsAny(name, `/\`) {
				return nil, fmt.Errorf("invalid style image name %q", name)
			}
			keys = append(keys, style+"/"+name)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%q: %w", style, ErrNoReferences)
	}

	refs := make([]image.Reference, 0, len(keys))
	for _, key := range keys {
		data, err := r.Styles.Read(key)
		if err != nil {
			return nil, fmt.Errorf("read style image %s: %w", key, err)
		}
		refs = append(refs, image.Reference{
			Filename: key[strings.LastIndex(key, "/")+1:],
			MIME:     storage.MIMEFromName(key),
			Data:     data,
		})
	}
	return refs, nil
}
