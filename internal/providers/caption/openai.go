package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures the vision chat caption writer.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Writer
	OnFallback func(reason string, err error)
}

// OpenAIWriter asks a vision chat model to caption the image and falls back to
// another writer on any failure.
type OpenAIWriter struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	fallback   Writer
	onFallback func(reason string, err error)
}

const openAIDefaultTimeout = 30 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

const maxCaptionRunes = 2200

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIWriter(opts OpenAIOptions) *OpenAIWriter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticWriter()
	}
	return &OpenAIWriter{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		baseURL:    baseURL,
		client:     client,
		fallback:   fallback,
		onFallback: opts.OnFallback,
	}
}

func (o *OpenAIWriter) Write(ctx context.Context, req Request) (*Result, error) {
	if o.apiKey == "" {
		return o.useFallback(ctx, req, "missing_api_key", nil)
	}
	if len(req.Image) == 0 {
		return o.useFallback(ctx, req, "missing_image", nil)
	}
	mime := strings.TrimSpace(req.MIME)
	if mime == "" {
		mime = "image/png"
	}
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.7,
		MaxTokens:   400,
		Messages: []openAIMessage{
			{Role: "system", Content: "You write short, warm Instagram captions for a modest fashion brand. Reply with the caption text only."},
			{Role: "user", Content: []openAIContentPart{
				{Type: "text", Text: buildCaptionInstruction(req)},
				{Type: "image_url", ImageURL: &openAIImageURL{
					URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
				}},
			}},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, req, "encode_request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return o.useFallback(ctx, req, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return o.useFallback(ctx, req, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, req, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, req, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := cleanCaption(out.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	return &Result{Text: text, Provider: openAIProviderName}, nil
}

func (o *OpenAIWriter) useFallback(ctx context.Context, req Request, reason string, fallbackErr error) (*Result, error) {
	if o.onFallback != nil {
		o.onFallback(reason, fallbackErr)
	}
	res, err := o.fallback.Write(ctx, req)
	if res != nil {
		if res.Provider == "" {
			res.Provider = staticProviderName
		}
		res.FallbackReason = reason
	}
	return res, err
}

func buildCaptionInstruction(req Request) string {
	var b strings.Builder
	b.WriteString("Write an Instagram caption for this photo")
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(&b, " showing a %s hijab", strings.ReplaceAll(style, "_", " "))
	}
	if color := strings.TrimSpace(req.Color); color != "" {
		fmt.Fprintf(&b, " in %s", color)
	}
	b.WriteString(". Two or three sentences, at most two emoji, then four to six relevant hashtags on a new line.")
	return b.String()
}

// cleanCaption strips wrapping quotes and code fences and enforces the
// platform's caption length limit.
func cleanCaption(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if r := []rune(s); len(r) > maxCaptionRunes {
		s = string(r[:maxCaptionRunes])
	}
	return s
}

var _ Writer = (*OpenAIWriter)(nil)
