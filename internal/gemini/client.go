package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/promptforge-app/promptforge/internal/config"
	"github.com/promptforge-app/promptforge/internal/metrics"
)

// Typed failures the caller maps to API error codes. ErrNotConfigured is a
// failed-precondition (missing key), ErrProviderQuota is the provider's own
// rate limit (distinct from the per-user daily quota), and
// ErrEmptyCompletion means the model returned no usable text.
var (
	ErrNotConfigured   = errors.New("gemini: api key not configured")
	ErrProviderQuota   = errors.New("gemini: provider quota exceeded")
	ErrEmptyCompletion = errors.New("gemini: empty completion")
)

// Message is one role-tagged turn of model input.
type Message struct {
	Role string
	Text string
}

// Options controls a single completion call.
type Options struct {
	Model           string
	System          string
	Temperature     float64
	MaxOutputTokens int
}

// Client calls the Google Generative Language API over HTTP. It is
// constructed once at startup and injected; there is no process-global
// instance or lazy initialization.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.GeminiConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SafetySettings    []safetySetting   `json:"safetySettings,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// defaultSafetySettings filter harmful content at medium strength and above
// across all four harm categories.
var defaultSafetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// Complete performs a blocking generateContent call and returns the first
// candidate's text, trimmed.
func (c *Client) Complete(ctx context.Context, opts Options, msgs []Message) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	req := generateRequest{
		GenerationConfig: &generationConfig{},
		SafetySettings:   defaultSafetySettings,
	}
	if opts.Temperature > 0 {
		req.GenerationConfig.Temperature = &opts.Temperature
	}
	if opts.MaxOutputTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = &opts.MaxOutputTokens
	}
	if opts.System != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: opts.System}}}
	}
	for _, m := range msgs {
		req.Contents = append(req.Contents, content{
			Role:  m.Role,
			Parts: []part{{Text: m.Text}},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, opts.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", err)
	}
	defer resp.Body.Close()
	metrics.GeminiRequestDuration.WithLabelValues(opts.Model).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.mapAPIError(resp.StatusCode, respBody)
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := firstCandidateText(gen)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (c *Client) mapAPIError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests || ae.Error.Status == "RESOURCE_EXHAUSTED":
		return fmt.Errorf("%w: %s", ErrProviderQuota, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key"):
		return fmt.Errorf("%w: %s", ErrNotConfigured, msg)
	default:
		return fmt.Errorf("gemini: status %d: %s", status, msg)
	}
}

func firstCandidateText(gen generateResponse) string {
	if len(gen.Candidates) == 0 || gen.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range gen.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}
