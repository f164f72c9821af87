package image

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingAPIKey indicates that a provider was selected without credentials.
var ErrMissingAPIKey = errors.New("image provider: api key is required")

// Reference is a style photo sent along with the prompt.
type Reference struct {
	Filename string
	MIME     string
	Data     []byte
}

// GenerateRequest describes a normalized request passed to any image provider.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	RequestID      string
	References     []Reference
}

// Asset represents a generated image.
type Asset struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// Ext returns the file extension matching the asset format.
func (a Asset) Ext() string {
	switch normalizeFormat(a.Format) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}
