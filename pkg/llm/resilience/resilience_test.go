package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/httpclient"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2,
		RetryableErrors: IsRetryableError,
	}
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }
	boom := errors.New("boom")

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitBreakerOpen)

	now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.State(), "半开探测失败后重新打开")

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Stats{Name: "test", State: "closed", Failures: 0}, cb.Stats())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	boom := errors.New("boom")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateClosed, cb.State())

	cb.Reset()
	assert.Equal(t, 0, cb.Stats().Failures)
}

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"首次成功", []error{nil}, 3, 1, false},
		{"服务端错误后成功", []error{&httpclient.StatusError{StatusCode: 503}, nil}, 3, 2, false},
		{"不可重试错误立即返回", []error{&httpclient.StatusError{StatusCode: 400}}, 3, 1, true},
		{"耗尽重试次数", []error{
			&httpclient.StatusError{StatusCode: 500},
			&httpclient.StatusError{StatusCode: 500},
		}, 2, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), fastRetry(tt.attempts), func(context.Context) error {
				err := tt.errs[min(calls, len(tt.errs)-1)]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestRetryAttemptTimeout(t *testing.T) {
	cfg := NewRetryConfig(20*time.Millisecond, 1)
	cfg.InitialDelay = time.Millisecond

	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err, "单次超时后重试成功")
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestRetryStopsWhenParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return &httpclient.StatusError{StatusCode: 503}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"熔断", ErrCircuitBreakerOpen, false},
		{"取消", context.Canceled, false},
		{"超时", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"HTTP 429", &httpclient.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"HTTP 401", &httpclient.StatusError{StatusCode: http.StatusUnauthorized}, false},
		{"Google API 503", fmt.Errorf("gemini: %w", &googleapi.Error{Code: 503}), true},
		{"Google API 400", &googleapi.Error{Code: 400}, false},
		{"gRPC 资源耗尽", status.Error(codes.ResourceExhausted, "quota"), true},
		{"gRPC 参数错误", status.Error(codes.InvalidArgument, "bad"), false},
		{"普通错误", errors.New("parse failure"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Chat(ctx context.Context, _ []llm.Message) (string, error) {
	return f.Generate(ctx, "", "")
}

func (f *flakyChat) Generate(context.Context, string, string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", &httpclient.StatusError{StatusCode: 502}
	}
	return "ok", nil
}

func TestResilientChatProvider(t *testing.T) {
	inner := &flakyChat{failures: 2}
	p := NewResilientChatProvider("composer", inner, fastRetry(3), nil)

	got, err := p.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky", p.Name())
	assert.Equal(t, "flaky-composer", p.CircuitBreaker().Stats().Name)

	inner = &flakyChat{failures: 10}
	p = NewResilientChatProvider("router", inner, fastRetry(2), nil)
	_, err = p.Chat(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
