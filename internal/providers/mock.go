package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockReply is one scripted answer. A non-nil Err fails the call.
type MockReply struct {
	Content string
	Err     error
}

// MockClient is an LLMClient for testing. Scripted replies are consumed in
// order; once exhausted the client answers with ResponseText, or asks
// Respond when set.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// Respond computes a reply from the request. Takes precedence over
	// ResponseText but not over scripted replies.
	Respond func(req *ChatRequest) (string, error)

	// Tokens reported per successful call.
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int

	mu       sync.Mutex
	script   []MockReply
	requests []ChatRequest

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText:     "mock response",
		PromptTokens:     100,
		CompletionTokens: 20,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Script queues replies returned by the next calls, in order.
func (c *MockClient) Script(replies ...MockReply) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, replies...)
	return c
}

// Chat answers a request from the script or the configured defaults.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	var next *MockReply
	if len(c.script) > 0 {
		r := c.script[0]
		c.script = c.script[1:]
		next = &r
	}
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}

	if c.ShouldFail {
		return result, result.fail("mock_failure", fmt.Errorf("mock client configured to fail"), start)
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return result, result.fail("mock_failure", fmt.Errorf("mock client failed after %d requests", c.FailAfter), start)
	}

	// Simulate latency
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return result, result.fail("context_cancelled", ctx.Err(), start)
		}
	} else if err := ctx.Err(); err != nil {
		return result, result.fail("context_cancelled", err, start)
	}

	content := c.ResponseText
	switch {
	case next != nil:
		if next.Err != nil {
			return result, result.fail("mock_failure", next.Err, start)
		}
		content = next.Content
	case c.Respond != nil:
		text, err := c.Respond(req)
		if err != nil {
			return result, result.fail("mock_failure", err, start)
		}
		content = text
	}

	result.Success = true
	result.Content = content
	result.PromptTokens = c.PromptTokens
	result.CompletionTokens = c.CompletionTokens
	result.CachedTokens = c.CachedTokens
	result.TotalTokens = c.PromptTokens + c.CompletionTokens
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of every request received so far.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset clears the request counter, the history and any pending script.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.script = nil
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
