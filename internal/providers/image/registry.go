package image

import (
	"fmt"
	"strings"

	"studio/internal/infra"
)

// New returns the generator registered under name ("gemini" or "qwen").
func New(name string, cfg *infra.Config, logger *infra.Logger) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gemini":
		return NewGeminiGenerator(GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  logger,
		}), nil
	case "qwen":
		return NewQwenGenerator(QwenOptions{
			APIKey:  cfg.QwenAPIKey,
			BaseURL: cfg.QwenBaseURL,
			Model:   cfg.QwenModel,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown image provider %q (want gemini or qwen)", name)
	}
}
