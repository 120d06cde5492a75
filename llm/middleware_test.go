package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcProvider struct {
	fn func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

func (f *funcProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return f.fn(ctx, req)
}

func (f *funcProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (f *funcProvider) Name() string { return "func" }

type countingCollector struct {
	ok, failed int
}

func (c *countingCollector) RecordRequest(model string, d time.Duration, success bool) {
	if success {
		c.ok++
	} else {
		c.failed++
	}
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				trace = append(trace, name)
				return next(ctx, req)
			}
		}
	}

	p := Wrap(&funcProvider{fn: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		trace = append(trace, "provider")
		return &ChatResponse{}, nil
	}}, NewChain(mark("a"), mark("b")))

	_, err := p.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "provider"}, trace)
	assert.Equal(t, "func", p.Name())
}

func TestTimeoutMiddleware(t *testing.T) {
	p := Wrap(&funcProvider{fn: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, NewChain(TimeoutMiddleware(20*time.Millisecond)))

	_, err := p.Completion(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecoveryAndMetricsMiddleware(t *testing.T) {
	collector := &countingCollector{}
	var recovered any
	p := Wrap(&funcProvider{fn: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		panic("boom")
	}}, NewChain(MetricsMiddleware(collector), RecoveryMiddleware(func(v any) { recovered = v })))

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "m"})
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "boom", recovered)
	assert.Equal(t, 1, collector.failed)
}

func TestRateLimitMiddleware_CancelledContext(t *testing.T) {
	p := Wrap(&funcProvider{fn: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{}, nil
	}}, NewChain(RateLimitMiddleware(0.001, 1)))

	_, err := p.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err, "first request consumes the burst")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Completion(ctx, &ChatRequest{})
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrRateLimited, llmErr.Code)
}

func TestWrap_EmptyChainReturnsProvider(t *testing.T) {
	base := &funcProvider{}
	assert.Same(t, Provider(base), Wrap(base, nil))
}
