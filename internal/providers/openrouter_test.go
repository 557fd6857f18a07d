package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func openRouterReply(content string) map[string]any {
	return map[string]any{
		"id":    "test-id",
		"model": "openai/gpt-4o",
		"choices": []map[string]any{
			{
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
			"prompt_tokens_details": map[string]int{
				"cached_tokens": 4,
			},
		},
	}
}

func TestOpenRouterClient_Chat(t *testing.T) {
	t.Run("successful chat", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != "POST" {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openRouterReply("Hej!"))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
		})

		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Hello"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Error("expected Success = true")
		}
		if result.Content != "Hej!" {
			t.Errorf("Content = %q", result.Content)
		}
		if result.PromptTokens != 10 || result.CompletionTokens != 8 || result.CachedTokens != 4 {
			t.Errorf("tokens = %d/%d/%d, want 10/8/4", result.PromptTokens, result.CompletionTokens, result.CachedTokens)
		}
	})

	t.Run("vision message with images", func(t *testing.T) {
		var received openRouterRequest
		var raw map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body json.RawMessage
			json.NewDecoder(r.Body).Decode(&body)
			json.Unmarshal(body, &received)
			json.Unmarshal(body, &raw)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openRouterReply(`{"ok":true}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: server.URL})
		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{UserMessage("Extract fields", []byte("fake-png"))},
			JSONMode: true,
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		parts, ok := received.Messages[0].Content.([]any)
		if !ok {
			t.Fatalf("expected content to be array, got %T", received.Messages[0].Content)
		}
		if len(parts) != 2 {
			t.Fatalf("expected 2 content items, got %d", len(parts))
		}
		img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		if !strings.HasPrefix(img, "data:image/png;base64,") {
			t.Errorf("image url = %q", img)
		}
		if received.ResponseFormat == nil || received.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v, want json_object", received.ResponseFormat)
		}
		if _, ok := raw["temperature"]; !ok {
			t.Error("temperature must always be sent so 0 is not dropped")
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "Rate limit exceeded"}}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "test"}},
		})

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("Chat() error = %v, want *RateLimitError", err)
		}
		if rl.RetryAfter != 3*time.Second {
			t.Errorf("RetryAfter = %v, want 3s", rl.RetryAfter)
		}
		if !IsRetryable(err) {
			t.Error("rate limit should be retryable")
		}
		if result.Success || result.ErrorType != "http_error" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("server and client errors", func(t *testing.T) {
		tests := []struct {
			status    int
			retryable bool
		}{
			{http.StatusInternalServerError, true},
			{http.StatusBadGateway, true},
			{http.StatusBadRequest, false},
			{http.StatusUnauthorized, false},
		}
		for _, tt := range tests {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
			_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
			server.Close()

			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Errorf("status %d: error = %v", tt.status, err)
				continue
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("status %d: IsRetryable() = %v, want %v", tt.status, got, tt.retryable)
			}
		}
	})

	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"x","choices":[]}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
		if err == nil {
			t.Fatal("expected error")
		}
		if result.ErrorType != "empty_response" {
			t.Errorf("ErrorType = %s, want empty_response", result.ErrorType)
		}
	})

	t.Run("api error in body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"message":"model overloaded","code":503}}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
		if err == nil || !strings.Contains(err.Error(), "model overloaded") {
			t.Fatalf("error = %v", err)
		}
		if result.ErrorType != "api_error" {
			t.Errorf("ErrorType = %s, want api_error", result.ErrorType)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: server.URL})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Chat(ctx, &ChatRequest{
			Messages: []Message{{Role: "user", Content: "test"}},
		})
		if err == nil {
			t.Fatal("expected error from cancelled context")
		}
		if IsRetryable(err) {
			t.Error("cancellation must not be retryable")
		}
	})
}

func TestOpenRouterClient_Config(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k"})
	if client.baseURL != OpenRouterBaseURL {
		t.Errorf("baseURL = %s, want %s", client.baseURL, OpenRouterBaseURL)
	}
	if client.defaultModel == "" {
		t.Error("defaultModel should have a default")
	}
	if client.client.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", client.client.Timeout)
	}
	if client.Name() != OpenRouterName {
		t.Errorf("Name() = %s", client.Name())
	}
}

func TestReplyText(t *testing.T) {
	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"nil", nil, ""},
		{"string", "{\"a\":1}", `{"a":1}`},
		{"parts", []any{map[string]any{"type": "text", "text": "hej"}}, `[{"text":"hej","type":"text"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replyText(tt.content)
			if err != nil {
				t.Fatalf("replyText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("replyText() = %q, want %q", got, tt.want)
			}
		})
	}
}
