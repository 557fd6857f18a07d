package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToGeminiParts(t *testing.T) {
	system, parts := toGeminiParts([]Message{
		{Role: "system", Content: "You read Swedish inspection reports."},
		UserMessage("Extract fields", []byte("page-1"), []byte("page-2")),
	})

	if len(system) != 1 {
		t.Fatalf("system parts = %d, want 1", len(system))
	}
	if len(parts) != 3 {
		t.Fatalf("content parts = %d, want 3", len(parts))
	}
	if _, ok := parts[0].(genai.Text); !ok {
		t.Errorf("first part = %T, want genai.Text", parts[0])
	}
	blob, ok := parts[2].(*genai.Blob)
	if !ok || blob.MIMEType != "image/png" || string(blob.Data) != "page-2" {
		t.Errorf("third part = %#v", parts[2])
	}
}

func TestFirstText(t *testing.T) {
	if got := firstText(nil); got != "" {
		t.Errorf("firstText(nil) = %q", got)
	}
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"ok":true}`)}}},
		},
	}
	if got := firstText(resp); got != `{"ok":true}` {
		t.Errorf("firstText() = %q", got)
	}
}

func TestMapGeminiError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		rateLimit bool
	}{
		{"rest 429", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota", Header: http.Header{"Retry-After": []string{"2"}}}, true, true},
		{"rest 503", &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "overloaded"}, true, false},
		{"rest 400", &googleapi.Error{Code: http.StatusBadRequest, Message: "bad"}, false, false},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), true, true},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true, false},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), true, false},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false, false},
		{"plain", errors.New("boom"), false, false},
		{"cancelled", context.Canceled, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapGeminiError(tt.err)
			if IsRetryable(got) != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", got, !tt.retryable, tt.retryable)
			}
			if _, ok := IsRateLimitError(got); ok != tt.rateLimit {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", got, ok, tt.rateLimit)
			}
		})
	}
}

func TestGeminiClientEmptyKey(t *testing.T) {
	c := NewGeminiClient(GeminiConfig{})
	if c.defaultModel != geminiDefaultModel {
		t.Errorf("defaultModel = %q", c.defaultModel)
	}
	result, err := c.Chat(context.Background(), &ChatRequest{Messages: []Message{UserMessage("x")}})
	if err == nil {
		t.Fatal("expected error without API key")
	}
	if result.ErrorType != "client_error" {
		t.Errorf("ErrorType = %q, want client_error", result.ErrorType)
	}
}
