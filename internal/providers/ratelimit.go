package providers

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// RateLimit is a snapshot of one provider's request budget.
type RateLimit struct {
	PerMinute int   `json:"per_minute"`
	Available int   `json:"available"`
	Calls     int64 `json:"calls"`
}

// limiter is a token bucket holding at most perMinute tokens, refilled
// continuously.
type limiter struct {
	mu        sync.Mutex
	perMinute int
	tokens    float64
	updated   time.Time
	calls     int64
}

func newLimiter(perMinute int) *limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &limiter{
		perMinute: perMinute,
		tokens:    float64(perMinute),
		updated:   time.Now(),
	}
}

// take consumes a token, or reports how long until one is due.
func (l *limiter) take() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		l.calls++
		return 0, true
	}
	perSecond := float64(l.perMinute) / 60
	return time.Duration((1 - l.tokens) / perSecond * float64(time.Second)), false
}

func (l *limiter) wait(ctx context.Context) error {
	for {
		delay, ok := l.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain empties the bucket; used after the provider answers 429.
func (l *limiter) drain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	l.tokens = 0
}

func (l *limiter) snapshot() RateLimit {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	return RateLimit{PerMinute: l.perMinute, Available: int(l.tokens), Calls: l.calls}
}

// refill must be called with mu held.
func (l *limiter) refill(now time.Time) {
	gained := now.Sub(l.updated).Seconds() * float64(l.perMinute) / 60
	l.tokens = min(float64(l.perMinute), l.tokens+gained)
	l.updated = now
}

// LimitedClient gates an LLMClient behind a per-minute request budget.
type LimitedClient struct {
	inner   LLMClient
	limiter *limiter
}

// Limited wraps client so that it issues at most rpm requests per minute.
func Limited(client LLMClient, rpm int) *LimitedClient {
	return &LimitedClient{inner: client, limiter: newLimiter(rpm)}
}

func (c *LimitedClient) Name() string {
	return c.inner.Name()
}

// Chat waits for budget, then delegates. A 429 drains the bucket.
func (c *LimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return &ChatResult{Provider: c.inner.Name(), ErrorType: "context_cancelled", ErrorMessage: err.Error()},
			fmt.Errorf("rate limiter wait: %w", err)
	}
	result, err := c.inner.Chat(ctx, req)
	if _, ok := IsRateLimitError(err); ok {
		c.limiter.drain()
	}
	return result, err
}

func (c *LimitedClient) RateLimit() RateLimit {
	return c.limiter.snapshot()
}

// Close closes the wrapped client when it holds resources.
func (c *LimitedClient) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var _ LLMClient = (*LimitedClient)(nil)
