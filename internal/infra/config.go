package infra

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Port      string `env:"PORT" envDefault:"8080"`
	PublicURL string `env:"PUBLIC_URL"`

	InstagramAppID       string `env:"INSTAGRAM_APP_ID"`
	InstagramAppSecret   string `env:"INSTAGRAM_APP_SECRET"`
	InstagramAccessToken string `env:"INSTAGRAM_ACCESS_TOKEN"`
	InstagramUserID      string `env:"INSTAGRAM_USER_ID"`
	GraphBaseURL         string `env:"GRAPH_BASE_URL" envDefault:"https://graph.facebook.com"`
	GraphAPIVersion      string `env:"GRAPH_API_VERSION" envDefault:"v21.0"`
	OAuthDialogURL       string `env:"OAUTH_DIALOG_URL" envDefault:"https://www.facebook.com"`

	CredentialsPath string `env:"CREDENTIALS_PATH" envDefault:"data/instagram_credentials.json"`
	GalleryPath     string `env:"GALLERY_PATH" envDefault:"data/gallery.json"`
	OutputDir       string `env:"OUTPUT_DIR" envDefault:"output"`
	StylesDir       string `env:"STYLES_DIR" envDefault:"styles"`
	DriverPath      string `env:"DRIVER_PATH" envDefault:"./bin/generate"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	QwenAPIKey    string `env:"QWEN_API_KEY"`
	QwenModel     string `env:"QWEN_MODEL" envDefault:"qwen-image-edit"`
	QwenBaseURL   string `env:"QWEN_BASE_URL" envDefault:"https://dashscope-intl.aliyuncs.com/api/v1"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	HTTPReadTimeoutSeconds  int `env:"HTTP_READ_TIMEOUT_SECONDS" envDefault:"15"`
	HTTPWriteTimeoutSeconds int `env:"HTTP_WRITE_TIMEOUT_SECONDS" envDefault:"120"`
	HTTPIdleTimeoutSeconds  int `env:"HTTP_IDLE_TIMEOUT_SECONDS" envDefault:"60"`
	GenerateTimeoutSeconds  int `env:"GENERATE_TIMEOUT_SECONDS" envDefault:"300"`
	RateLimitPerMin         int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	HTTPReadTimeout  time.Duration `env:"-"`
	HTTPWriteTimeout time.Duration `env:"-"`
	HTTPIdleTimeout  time.Duration `env:"-"`
	GenerateTimeout  time.Duration `env:"-"`
}

var graphVersionRegexp = regexp.MustCompile(`^v[0-9]+\.[0-9]+$`)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finalize(cfg)
}

// loadConfigFrom parses an explicit environment map instead of the process environment.
func loadConfigFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("PUBLIC_URL must be an absolute URL, got %q", cfg.PublicURL)
		}
	}
	cfg.GraphBaseURL = strings.TrimRight(cfg.GraphBaseURL, "/")
	cfg.OAuthDialogURL = strings.TrimRight(cfg.OAuthDialogURL, "/")
	if !graphVersionRegexp.MatchString(cfg.GraphAPIVersion) {
		return nil, fmt.Errorf("GRAPH_API_VERSION must look like v21.0, got %q", cfg.GraphAPIVersion)
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 30
	}

	cfg.HTTPReadTimeout = seconds(cfg.HTTPReadTimeoutSeconds, 15)
	cfg.HTTPWriteTimeout = seconds(cfg.HTTPWriteTimeoutSeconds, 120)
	cfg.HTTPIdleTimeout = seconds(cfg.HTTPIdleTimeoutSeconds, 60)
	cfg.GenerateTimeout = seconds(cfg.GenerateTimeoutSeconds, 300)
	return cfg, nil
}

// BaseURL returns the externally visible origin of the dashboard. It falls back to
// localhost on the configured port when PUBLIC_URL is unset.
func (c *Config) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://localhost:" + c.Port
}

// InstagramConfigured reports whether the OAuth client settings are complete.
func (c *Config) InstagramConfigured() bool {
	return strings.TrimSpace(c.InstagramAppID) != "" &&
		strings.TrimSpace(c.InstagramAppSecret) != "" &&
		c.PublicURL != ""
}

// OAuthRedirectURL is the callback registered with the Facebook app.
func (c *Config) OAuthRedirectURL() string {
	return c.BaseURL() + "/auth/instagram/callback"
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
