package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterConfig configures the OpenRouter chat client. Zero values fall
// back to the public endpoint, openai/gpt-4o and a two minute timeout.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OpenRouterClient sends page images to any vision model OpenRouter routes to.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	c := &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
	if c.baseURL == "" {
		c.baseURL = OpenRouterBaseURL
	}
	if c.defaultModel == "" {
		c.defaultModel = "openai/gpt-4o"
	}
	if c.client.Timeout == 0 {
		c.client.Timeout = 120 * time.Second
	}
	return c
}

func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// Chat posts one chat completion. The returned result is never nil; on
// failure it carries the error type the call log records.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	result := &ChatResult{
		RequestID: req.RequestID,
		Provider:  OpenRouterName,
		ModelUsed: req.Model,
	}
	if result.RequestID == "" {
		result.RequestID = uuid.New().String()
	}
	if result.ModelUsed == "" {
		result.ModelUsed = c.defaultModel
	}

	resp, err := c.post(ctx, newOpenRouterRequest(req, result.ModelUsed))
	if err != nil {
		return result, result.fail("http_error", err, start)
	}
	if resp.Error != nil {
		return result, result.fail("api_error", fmt.Errorf("openrouter: %s", resp.Error.Message), start)
	}
	if len(resp.Choices) == 0 {
		return result, result.fail("empty_response", errors.New("openrouter: no choices in response"), start)
	}
	text, err := replyText(resp.Choices[0].Message.Content)
	if err != nil {
		return result, result.fail("content_marshal_error", err, start)
	}

	if resp.Model != "" {
		result.ModelUsed = resp.Model
	}
	result.Success = true
	result.Content = text
	result.PromptTokens = resp.Usage.PromptTokens
	result.CompletionTokens = resp.Usage.CompletionTokens
	result.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	result.TotalTokens = resp.Usage.TotalTokens
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// newOpenRouterRequest maps a ChatRequest onto the OpenAI-compatible wire
// shape. Messages with images become a text part followed by one
// image_url part per page.
func newOpenRouterRequest(req *ChatRequest, model string) *openRouterRequest {
	out := &openRouterRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]openRouterMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		out.Messages[i] = openRouterMessage{Role: m.Role, Content: m.Content}
		if len(m.Images) == 0 {
			continue
		}
		parts := make([]openRouterContent, 0, len(m.Images)+1)
		parts = append(parts, openRouterContent{Type: "text", Text: m.Content})
		for _, img := range m.Images {
			parts = append(parts, openRouterContent{
				Type:     "image_url",
				ImageURL: &openRouterImageURL{URL: pngDataURL(img)},
			})
		}
		out.Messages[i].Content = parts
	}
	if req.JSONMode {
		out.ResponseFormat = &openRouterResponseFormat{Type: "json_object"}
	}
	return out
}

// replyText flattens message content, which some models return as a list
// of parts instead of a string.
func replyText(content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("openrouter: marshal content: %w", err)
	}
	return string(b), nil
}

// post sends body to /chat/completions. Non-200 answers become
// *RateLimitError or *StatusError so the retry policy can classify them.
func (c *OpenRouterClient) post(ctx context.Context, body *openRouterRequest) (*openRouterResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "besiktning")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError(OpenRouterName, resp.StatusCode, string(raw), resp.Header)
	}

	var out openRouterResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

var _ LLMClient = (*OpenRouterClient)(nil)
