package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.0-flash"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// GeminiClient implements LLMClient with the Google generative AI SDK.
// The underlying SDK client is created lazily on first use and reused.
type GeminiClient struct {
	apiKey       string
	defaultModel string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = geminiDefaultModel
	}
	return &GeminiClient{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = cl
	return cl, nil
}

// Close releases the SDK client.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Chat sends the request as one GenerateContent call. System messages become
// the system instruction; user text and images become content parts.
func (c *GeminiClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	result := &ChatResult{
		RequestID: requestID,
		Provider:  GeminiName,
		ModelUsed: model,
	}

	cl, err := c.sdk(ctx)
	if err != nil {
		return result, result.fail("client_error", err, start)
	}

	m := cl.GenerativeModel(model)
	temp := float32(req.Temperature)
	m.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if req.JSONMode {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	system, parts := toGeminiParts(req.Messages)
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(parts) == 0 {
		return result, result.fail("invalid_request", fmt.Errorf("no user content in request"), start)
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return result, result.fail("http_error", mapGeminiError(err), start)
	}

	text := firstText(resp)
	if text == "" {
		return result, result.fail("empty_response", fmt.Errorf("gemini returned no text"), start)
	}

	result.Success = true
	result.Content = text
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = int(u.PromptTokenCount)
		result.CompletionTokens = int(u.CandidatesTokenCount)
		result.CachedTokens = int(u.CachedContentTokenCount)
		result.TotalTokens = int(u.TotalTokenCount)
	}
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func toGeminiParts(msgs []Message) (system, parts []genai.Part) {
	for _, m := range msgs {
		if m.Role == "system" {
			system = append(system, genai.Text(m.Content))
			continue
		}
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
		for _, img := range m.Images {
			parts = append(parts, &genai.Blob{MIMEType: "image/png", Data: img})
		}
	}
	return system, parts
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// mapGeminiError converts REST and gRPC quota errors to *RateLimitError and
// server-side failures to *StatusError so IsRetryable can see them.
func mapGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return NewStatusError(GeminiName, gerr.Code, gerr.Message, gerr.Header)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return &RateLimitError{Message: st.Message(), StatusCode: http.StatusTooManyRequests}
		case codes.Unavailable, codes.Internal:
			return &StatusError{Provider: GeminiName, StatusCode: http.StatusServiceUnavailable, Body: st.Message()}
		case codes.DeadlineExceeded:
			return fmt.Errorf("gemini: %w", context.DeadlineExceeded)
		}
	}
	return err
}

var _ LLMClient = (*GeminiClient)(nil)
