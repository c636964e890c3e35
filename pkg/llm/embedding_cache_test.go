package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	stubProvider
	calls int
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.stubProvider.EmbedSingle(ctx, text)
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	return c.stubProvider.Embed(ctx, texts)
}

func TestCachedEmbeddingProviderBypass(t *testing.T) {
	inner := &countingEmbedder{stubProvider: stubProvider{name: "openai"}}
	p := NewCachedEmbeddingProvider(inner, nil, nil)

	vec, err := p.EmbedSingle(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 2, inner.calls, "无 Redis 时每次都调用底层供应商")

	n, err := p.ClearCache(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "openai", p.Name())
}

func TestCachedEmbeddingProviderKey(t *testing.T) {
	p := NewCachedEmbeddingProvider(&stubProvider{}, nil, &EmbeddingCacheConfig{KeyPrefix: "emb:1536:"})

	k1 := p.cacheKey("what is the holding?")
	assert.True(t, strings.HasPrefix(k1, "emb:1536:"))
	assert.Len(t, k1, len("emb:1536:")+64)
	assert.Equal(t, k1, p.cacheKey("what is the holding?"))
	assert.NotEqual(t, k1, p.cacheKey("what is the holding"))
}

// batchEmbedder 按文本长度生成向量，并记录每次批量调用的输入。
type batchEmbedder struct {
	stubProvider
	batches [][]string
	singles int
	drop    int
}

func (b *batchEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text)), 1, 0}
}

func (b *batchEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	b.singles++
	return b.vector(text), nil
}

func (b *batchEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, append([]string(nil), texts...))
	out := make([][]float32, 0, len(texts))
	for _, t := range texts[:len(texts)-b.drop] {
		out = append(out, b.vector(t))
	}
	return out, nil
}

func newRedisCache(t *testing.T, inner EmbeddingProvider) (*CachedEmbeddingProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg := &EmbeddingCacheConfig{Enabled: true, TTL: time.Hour, KeyPrefix: "test:emb:"}
	return NewCachedEmbeddingProvider(inner, client, cfg), mr
}

func TestCachedEmbeddingProviderRedis(t *testing.T) {
	ctx := context.Background()

	t.Run("单条命中缓存", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, mr := newRedisCache(t, inner)

		first, err := p.EmbedSingle(ctx, "holding")
		require.NoError(t, err)
		second, err := p.EmbedSingle(ctx, "holding")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, inner.singles)
		assert.True(t, mr.Exists(p.cacheKey("holding")))
		assert.Equal(t, time.Hour, mr.TTL(p.cacheKey("holding")))
	})

	t.Run("批量只请求未命中的文本", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, _ := newRedisCache(t, inner)

		_, err := p.Embed(ctx, []string{"a", "bb"})
		require.NoError(t, err)

		vecs, err := p.Embed(ctx, []string{"bb", "ccc", "a", "dddd"})
		require.NoError(t, err)
		require.Len(t, vecs, 4)
		for i, text := range []string{"bb", "ccc", "a", "dddd"} {
			assert.Equal(t, inner.vector(text), vecs[i], text)
		}
		require.Len(t, inner.batches, 2)
		assert.Equal(t, []string{"ccc", "dddd"}, inner.batches[1])
	})

	t.Run("全部命中不调用供应商", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, _ := newRedisCache(t, inner)

		_, err := p.Embed(ctx, []string{"x", "y"})
		require.NoError(t, err)
		_, err = p.Embed(ctx, []string{"y", "x"})
		require.NoError(t, err)
		assert.Len(t, inner.batches, 1)
	})

	t.Run("损坏的缓存项被删除并重新计算", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, mr := newRedisCache(t, inner)
		key := p.cacheKey("broken")
		require.NoError(t, mr.Set(key, "not-json"))

		vec, err := p.EmbedSingle(ctx, "broken")
		require.NoError(t, err)
		assert.Equal(t, inner.vector("broken"), vec)
		assert.Equal(t, 1, inner.singles)

		stored, err := mr.Get(key)
		require.NoError(t, err)
		assert.NotEqual(t, "not-json", stored)
	})

	t.Run("供应商返回数量不符时报错", func(t *testing.T) {
		inner := &batchEmbedder{drop: 1}
		p, mr := newRedisCache(t, inner)

		vecs, err := p.Embed(ctx, []string{"a", "b", "c"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "returned 2 vectors for 3 texts")
		assert.Nil(t, vecs)
		assert.Empty(t, mr.Keys())
	})

	t.Run("清空前缀下的缓存", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, mr := newRedisCache(t, inner)
		require.NoError(t, mr.Set("other:key", "keep"))

		_, err := p.Embed(ctx, []string{"a", "b"})
		require.NoError(t, err)

		n, err := p.ClearCache(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"other:key"}, mr.Keys())
	})

	t.Run("Redis 宕机时回退到供应商", func(t *testing.T) {
		inner := &batchEmbedder{}
		p, mr := newRedisCache(t, inner)
		mr.Close()

		vec, err := p.EmbedSingle(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, inner.vector("q"), vec)
	})
}
