package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAIClientChatVision(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-2024-08-06",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"CadastralDesignation\": \"Solna Råsunda 1\"}"}}],
			"usage": {"prompt_tokens": 1200, "completion_tokens": 40, "total_tokens": 1240,
				"prompt_tokens_details": {"cached_tokens": 1024}}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("Extract fields", []byte("png-bytes"))},
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success result")
	}
	if !strings.Contains(result.Content, "Solna Råsunda 1") {
		t.Errorf("Content = %q", result.Content)
	}
	if result.PromptTokens != 1200 || result.CompletionTokens != 40 || result.CachedTokens != 1024 {
		t.Errorf("tokens = %d/%d/%d", result.PromptTokens, result.CompletionTokens, result.CachedTokens)
	}
	if result.ModelUsed != "gpt-4o-2024-08-06" {
		t.Errorf("ModelUsed = %q", result.ModelUsed)
	}

	if got, _ := payload["model"].(string); got != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", got)
	}
	if got, ok := payload["temperature"].(float64); !ok || got != 0 {
		t.Errorf("temperature = %v, want 0", payload["temperature"])
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	parts, _ := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %d, want 2", len(parts))
	}
	imagePart := parts[1].(map[string]any)
	if imagePart["type"] != "image_url" {
		t.Errorf("second part type = %v", imagePart["type"])
	}
	url, _ := imagePart["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
}

func TestOpenAIClientRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit","type":"rate_limit_error","param":"","code":"rate_limit"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	rle, ok := IsRateLimitError(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rle.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", rle.RetryAfter)
	}
	if calls != 1 {
		t.Errorf("SDK retried %d times, want a single attempt", calls)
	}
	if result.Success {
		t.Error("expected Success = false")
	}
}

func TestOpenAIClientMistralName(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{Name: "mistral", BaseURL: MistralBaseURL, DefaultModel: "pixtral-large-latest"})
	if client.Name() != "mistral" {
		t.Errorf("Name() = %q, want mistral", client.Name())
	}
	if client.defaultModel != "pixtral-large-latest" {
		t.Errorf("defaultModel = %q", client.defaultModel)
	}
}
