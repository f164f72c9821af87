package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio/internal/infra"
)

// QwenOptions configures the DashScope Qwen image client.
type QwenOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	DefaultSize string
	Watermark   bool
	HTTPClient  *http.Client
	Logger      *infra.Logger
}

// QwenGenerator calls DashScope's multimodal generation endpoint with the
// reference images as data URIs and downloads the resulting image.
type QwenGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	defaultSize string
	watermark   bool
	httpClient  *http.Client
	logger      *infra.Logger
}

type qwenRequest struct {
	Model      string     `json:"model"`
	Input      qwenInput  `json:"input"`
	Parameters qwenParams `json:"parameters"`
}

type qwenInput struct {
	Messages []qwenMessage `json:"messages"`
}

type qwenMessage struct {
	Role    string        `json:"role"`
	Content []qwenContent `json:"content"`
}

type qwenContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type qwenParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
}

type qwenResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewQwenGenerator constructs a generator with sane defaults.
func NewQwenGenerator(opts QwenOptions) *QwenGenerator {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit"
	}
	defaultSize := strings.TrimSpace(opts.DefaultSize)
	if defaultSize == "" {
		defaultSize = "1328*1328"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &QwenGenerator{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		defaultSize: defaultSize,
		watermark:   opts.Watermark,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Name identifies the provider in gallery records.
func (g *QwenGenerator) Name() string { return "qwen" }

// Generate fulfils the Generator interface. A transient upstream failure is
// retried once without the negative prompt.
func (g *QwenGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("qwen: prompt is required")
	}

	content := make([]qwenContent, 0, len(req.References)+1)
	for _, ref := range req.References {
		if len(ref.Data) == 0 {
			continue
		}
		content = append(content, qwenContent{Image: dataURI(ref)})
	}
	content = append(content, qwenContent{Text: prompt})

	watermark := g.watermark
	payload := qwenRequest{
		Model: g.model,
		Input: qwenInput{Messages: []qwenMessage{{Role: "user", Content: content}}},
		Parameters: qwenParams{
			NegativePrompt: strings.TrimSpace(req.NegativePrompt),
			Size:           g.defaultSize,
			Watermark:      &watermark,
		},
	}
	if req.AspectRatio != "" {
		payload.Parameters.Size = AspectRatioSize(req.AspectRatio)
	}

	asset, err := g.generateOnce(ctx, payload, req.RequestID)
	if err == nil || !isTransientQwenError(err) {
		return asset, err
	}
	g.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("qwen: transient failure, retrying once")
	payload.Parameters.NegativePrompt = ""
	return g.generateOnce(ctx, payload, req.RequestID)
}

func (g *QwenGenerator) generateOnce(ctx context.Context, payload qwenRequest, requestID string) (*Asset, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	endpoint := g.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}

	var decoded qwenResponse
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode >= 300 {
		if decodeErr == nil && decoded.Message != "" {
			return nil, fmt.Errorf("qwen: %s (%s)", decoded.Message, decoded.Code)
		}
		return nil, fmt.Errorf("qwen: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", decodeErr)
	}
	if decoded.Code != "" {
		return nil, fmt.Errorf("qwen: %s (%s)", decoded.Message, decoded.Code)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, errors.New("qwen: empty image url")
	}
	data, format, err := g.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	width, height := decoded.Usage.Width, decoded.Usage.Height
	if width == 0 || height == 0 {
		width, height = decodeImageDimensions(data)
	}
	g.logger.Debug().
		Str("model", g.model).
		Str("request_id", requestID).
		Str("upstream_request_id", decoded.RequestID).
		Msg("qwen: generated image")
	return &Asset{Format: format, Width: width, Height: height, Data: data}, nil
}

func (g *QwenGenerator) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	return data, normalizeFormat(resp.Header.Get("Content-Type")), nil
}

func dataURI(ref Reference) string {
	return "data:" + normalizeFormat(ref.MIME) + ";base64," + base64.StdEncoding.EncodeToString(ref.Data)
}

func firstImageURL(resp qwenResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

func isTransientQwenError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "internalerror"), strings.Contains(msg, "internal error"):
		return true
	case strings.Contains(msg, "service unavailable"), strings.Contains(msg, "server unavailable"):
		return true
	case strings.Contains(msg, "timeout"):
		return true
	}
	return false
}

var _ Generator = (*QwenGenerator)(nil)
