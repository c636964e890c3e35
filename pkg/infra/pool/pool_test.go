package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "摄取池", config: IngestionPoolConfig(4)},
		{name: "抽取池", config: ExtractionPoolConfig(2)},
		{name: "容量为零", config: &Config{}, wantErr: true},
		{name: "空配置", config: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPool("docqa-test", IngestionPool, tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPoolConfig)
				return
			}
			require.NoError(t, err)
			defer p.Release()

			assert.Equal(t, "docqa-test", p.Name())
			assert.Equal(t, IngestionPool, p.Type())
			assert.Equal(t, tt.config.Capacity, p.Cap())
		})
	}
}

func TestSubmit(t *testing.T) {
	p, err := NewPool("ingest", IngestionPool, IngestionPoolConfig(8))
	require.NoError(t, err)
	defer p.Release()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(100), n.Load())
	assert.Eventually(t, func() bool { return p.Stats().Completed == 100 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(100), p.Stats().Submitted)
}

func TestDo(t *testing.T) {
	p, err := NewPool("extract", ExtractionPool, ExtractionPoolConfig(2))
	require.NoError(t, err)
	defer p.Release()

	t.Run("返回结果", func(t *testing.T) {
		var chunks int
		require.NoError(t, p.Do(context.Background(), func() error {
			chunks = 12
			return nil
		}))
		assert.Equal(t, 12, chunks)
	})

	t.Run("透传错误", func(t *testing.T) {
		want := errors.New("corrupt pdf")
		assert.ErrorIs(t, p.Do(context.Background(), func() error { return want }), want)
	})

	t.Run("panic 转为错误", func(t *testing.T) {
		err := p.Do(context.Background(), func() error { panic("parser bug") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parser bug")
		assert.Equal(t, int64(1), p.Stats().Panics)
	})

	t.Run("已取消的上下文不执行", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.Do(ctx, func() error {
			t.Error("task must not run")
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoTimeout(t *testing.T) {
	p, err := NewPool("extract", ExtractionPool, ExtractionPoolConfig(1))
	require.NoError(t, err)
	defer p.Release()

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = p.Do(ctx, func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitPanicCounted(t *testing.T) {
	p, err := NewPool("ingest", IngestionPool, IngestionPoolConfig(2))
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))
	assert.Eventually(t, func() bool { return p.Stats().Panics == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), p.Stats().Completed)
}

func TestReleased(t *testing.T) {
	p, err := NewPool("ingest", IngestionPool, IngestionPoolConfig(2))
	require.NoError(t, err)

	p.Release()
	p.Release()

	assert.ErrorIs(t, p.Submit(func() { t.Error("task must not run") }), ErrPoolClosed)
	assert.NoError(t, p.ReleaseTimeout(time.Second))
}

func TestNonblockingOverload(t *testing.T) {
	p, err := NewPool("ingest", IngestionPool, &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
	require.NoError(t, err)
	defer p.Release()

	busy := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-busy
	}))
	<-started

	err = p.Submit(func() { t.Error("task must not run") })
	assert.ErrorIs(t, err, ErrPoolOverload)
	assert.Equal(t, int64(1), p.Stats().Rejected)
	close(busy)
}
