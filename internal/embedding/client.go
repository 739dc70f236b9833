// Package embedding wraps an embedding provider with a bounded
// retry-with-backoff policy for transient provider failures.
package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"studymosaic/internal/config"
	"studymosaic/internal/providers"
	"studymosaic/internal/util"
)

// RetryPolicy controls how transient embedding failures are retried.
// Delay for attempt n (1-based) is InitialDelay * Base^(n-1) plus jitter.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
	MaxJitter    time.Duration
	Retryable    func(error) bool
}

func DefaultRetryPolicy(cfg config.Config) RetryPolicy {
	attempts := cfg.EmbedRetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	base := cfg.EmbedRetryBase
	if base < 1 {
		base = 7
	}
	initial := time.Duration(cfg.EmbedRetryInitMS) * time.Millisecond
	if initial <= 0 {
		initial = time.Second
	}
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		Base:         base,
		MaxJitter:    500 * time.Millisecond,
		Retryable:    providers.Retryable,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Base, float64(attempt-1)))
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return d
}

// Client embeds texts through a provider, one text at a time so a transient
// failure on one input does not discard the others' work.
type Client struct {
	provider providers.EmbeddingProvider
	policy   RetryPolicy
	dim      int
	sleep    func(context.Context, time.Duration) error
}

func NewClient(provider providers.EmbeddingProvider, policy RetryPolicy, dim int) *Client {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Retryable == nil {
		policy.Retryable = providers.Retryable
	}
	return &Client{provider: provider, policy: policy, dim: dim, sleep: sleepCtx}
}

// Embed returns one vector per input, in input order. After the retry budget
// is spent (or on a non-retryable error) it fails with ErrEmbeddingFailed
// wrapping the last cause; nothing is silently dropped.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: input %d: %w", util.ErrEmbeddingFailed, i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrEmbeddingFailed, err)
	}
	return vec, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		vecs, _, err := c.provider.Embed(ctx, providers.EmbedRequest{
			Operation: "embed",
			Inputs:    []string{text},
			Dimension: c.dim,
		})
		if err == nil {
			if len(vecs) == 0 {
				return nil, fmt.Errorf("provider returned no vector")
			}
			return vecs[0], nil
		}
		lastErr = err
		if !c.policy.Retryable(err) || attempt == c.policy.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.policy.delay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
