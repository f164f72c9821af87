// Package instagram talks to the Instagram Graph API: token exchange, page
// and account discovery, and the container/publish flow.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"studio/internal/infra"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com"
	defaultGraphVersion = "v21.0"
	maxResponseBytes    = 1 << 20
)

// Options configures the Graph API client.
type Options struct {
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *infra.Logger
}

// Client performs HTTP calls against a versioned Graph API.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
}

// APIError is an upstream failure: either a non-2xx status or an error object
// embedded in an otherwise successful response. Error returns the upstream
// message verbatim.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	TraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("graph api: http %d", e.Status)
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	version := strings.Trim(strings.TrimSpace(opts.Version), "/")
	if version == "" {
		version = defaultGraphVersion
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(5), 5)
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		baseURL:    baseURL,
		version:    version,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// Endpoint returns the absolute URL of a Graph path.
func (c *Client) Endpoint(path string) string {
	return c.baseURL + "/" + c.version + "/" + strings.TrimLeft(path, "/")
}

// HTTPClient exposes the underlying client for oauth2 exchanges.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.Endpoint(path)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("graph api: build request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("graph api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph api: %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("graph api: read response: %w", err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("graph api call")

	if apiErr := decodeAPIError(resp.StatusCode, body); apiErr != nil {
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("graph api: decode response: %w", err)
	}
	return nil
}

// decodeAPIError treats an embedded error member and a non-2xx status the
// same. An error member that is not an object still fails the call, with its
// raw text as the message.
func decodeAPIError(status int, body []byte) *APIError {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 && string(env.Error) != "null" {
		apiErr := &APIError{}
		if err := json.Unmarshal(env.Error, apiErr); err != nil {
			var text string
			if json.Unmarshal(env.Error, &text) != nil {
				text = string(env.Error)
			}
			apiErr = &APIError{Message: text}
		}
		apiErr.Status = status
		return apiErr
	}
	if status < 200 || status >= 300 {
		return &APIError{Status: status}
	}
	return nil
}
