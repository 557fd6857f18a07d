package pipeline

import (
	"context"

	"github.com/MrPrayat/DA235X/internal/backoff"
	"github.com/MrPrayat/DA235X/internal/llmcall"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/usage"
)

// chat sends req under the retry policy. Tokens of every attempt that
// reached the provider are counted and every attempt is traced.
func chat(ctx context.Context, client providers.LLMClient, retry backoff.Policy, trace *llmcall.Recorder,
	opts llmcall.RecordOptions, req *providers.ChatRequest) (*providers.ChatResult, usage.Counter, error) {

	var used usage.Counter
	opts.Temperature = &req.Temperature

	result, err := backoff.DoWithData(ctx, retry, func(ctx context.Context) (*providers.ChatResult, error) {
		res, err := client.Chat(ctx, req)
		used.Add(usage.FromResult(res))
		trace.Record(res, opts)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	return result, used, err
}

func retryPolicy(p backoff.Policy) backoff.Policy {
	if p.Attempts == 0 {
		p = backoff.DefaultPolicy(providers.IsRetryable)
	}
	if p.Retryable == nil {
		p.Retryable = providers.IsRetryable
	}
	return p
}
