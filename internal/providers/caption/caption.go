// Package caption writes Instagram captions for generated images.
package caption

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	openAIProviderName = "openai"
	staticProviderName = "static"
)

// Request carries the image to describe and the run's style hints.
type Request struct {
	Image []byte
	MIME  string
	Style string
	Color string
}

// Result is a caption plus the provider that produced it.
type Result struct {
	Text           string
	Provider       string
	FallbackReason string
}

// Writer produces a caption for a generated image.
type Writer interface {
	Write(ctx context.Context, req Request) (*Result, error)
}

// StaticWriter builds a template caption from the style label.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) Write(_ context.Context, req Request) (*Result, error) {
	c := cases.Title(language.Und)
	style := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(req.Style)), " ")
	if style == "" {
		style = "everyday"
	}
	look := c.String(style)
	if color := strings.TrimSpace(req.Color); color != "" {
		look = fmt.Sprintf("%s in %s", look, strings.ToLower(color))
	}
	tags := []string{"#hijab", "#hijabstyle", "#modestfashion", hashtag(style)}
	text := fmt.Sprintf("New look: %s hijab. Effortless, elegant, made for every day.\n\n%s", look, strings.Join(tags, " "))
	return &Result{Text: text, Provider: staticProviderName}, nil
}

func hashtag(s string) string {
	return "#" + strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

var _ Writer = (*StaticWriter)(nil)
