package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studymosaic/internal/providers"
	"studymosaic/internal/util"
)

type scriptedProvider struct {
	calls    int
	failures int
	err      error
}

func (p *scriptedProvider) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, providers.ProviderInfo{Name: "scripted"}, p.err
	}
	out := make([][]float32, 0, len(req.Inputs))
	for range req.Inputs {
		out = append(out, []float32{float32(p.calls)})
	}
	return out, providers.ProviderInfo{Name: "scripted"}, nil
}

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Base:         2,
		Retryable:    providers.Retryable,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestEmbedRetriesTransientFailures(t *testing.T) {
	p := &scriptedProvider{failures: 2, err: errors.New("429 rate limited")}
	c := NewClient(p, testPolicy(5), 4)
	c.sleep = noSleep

	vecs, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 3, p.calls)
}

func TestEmbedFailsAfterExhaustingAttempts(t *testing.T) {
	p := &scriptedProvider{failures: 10, err: errors.New("request timeout")}
	c := NewClient(p, testPolicy(3), 4)
	c.sleep = noSleep

	_, err := c.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, util.ErrEmbeddingFailed)
	require.Equal(t, 3, p.calls)
}

func TestEmbedDoesNotRetryPermanentErrors(t *testing.T) {
	p := &scriptedProvider{failures: 10, err: errors.New("invalid api key")}
	c := NewClient(p, testPolicy(5), 4)
	c.sleep = noSleep

	_, err := c.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, util.ErrEmbeddingFailed)
	require.Equal(t, 1, p.calls)
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	p := &scriptedProvider{}
	c := NewClient(p, testPolicy(5), 4)
	c.sleep = noSleep

	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	// One provider call per input; call counter encodes ordering.
	require.Equal(t, []float32{1}, vecs[0])
	require.Equal(t, []float32{2}, vecs[1])
	require.Equal(t, []float32{3}, vecs[2])
}

func TestEmbedQueryWrapsFailure(t *testing.T) {
	p := &scriptedProvider{failures: 10, err: errors.New("service unavailable")}
	c := NewClient(p, testPolicy(2), 4)
	c.sleep = noSleep

	_, err := c.EmbedQuery(context.Background(), "query")
	require.ErrorIs(t, err, util.ErrEmbeddingFailed)
}

func TestRetryPolicyBackoffGrows(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Base: 7}
	require.Equal(t, time.Second, p.delay(1))
	require.Equal(t, 7*time.Second, p.delay(2))
	require.Equal(t, 49*time.Second, p.delay(3))
}
