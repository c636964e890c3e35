package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	apierrors "github.com/kart-io/docqa/pkg/errors"
)

func TestRetrieve(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		topK    int
		dataset string
		wantIDs []string
	}{
		{name: "空查询", query: "  ", wantIDs: nil},
		{name: "按数据集过滤", query: "appeal", topK: 2, dataset: "court", wantIDs: []string{"a_p0_c0", "a_p0_c1"}},
		{name: "不限数据集", query: "appeal", topK: 2, wantIDs: []string{"a_p0_c0", "c_p0_c0"}},
		{name: "topK 使用默认值", query: "appeal", dataset: "court", wantIDs: []string{"a_p0_c0", "a_p0_c1", "a_p1_c0"}},
	}

	r := NewRetriever(seededIndex(t), &stubEmbedder{fallback: []float32{1, 0, 0}}, 3)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Retrieve(context.Background(), tt.query, tt.topK, tt.dataset)
			require.Nil(t, res.Err)

			var ids []string
			for _, c := range res.Chunks {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestRetrieveErrors(t *testing.T) {
	cause := errors.New("upstream")

	t.Run("向量化失败", func(t *testing.T) {
		r := NewRetriever(seededIndex(t), &stubEmbedder{err: cause}, 5)
		res := r.Retrieve(context.Background(), "appeal", 0, "")
		require.NotNil(t, res.Err)
		assert.Equal(t, msgEmbedFailed, res.Err.Message)
		assert.ErrorIs(t, res.Err, cause)
		assert.ErrorIs(t, res.Err, apierrors.ErrRetrieval)
		assert.Empty(t, res.Chunks)
	})

	t.Run("索引查询失败", func(t *testing.T) {
		idx := failingIndex{MemoryIndex: store.NewMemoryIndex("broken", 3), err: cause}
		r := NewRetriever(idx, &stubEmbedder{fallback: []float32{1, 0, 0}}, 5)
		res := r.Retrieve(context.Background(), "appeal", 0, "")
		require.NotNil(t, res.Err)
		assert.Equal(t, msgQueryFailed, res.Err.Message)
		assert.EqualError(t, res.Err, msgQueryFailed)
	})
}

func TestFetchDocument(t *testing.T) {
	r := NewRetriever(seededIndex(t), &stubEmbedder{fallback: []float32{1, 0, 0}}, 5)
	ctx := context.Background()

	tests := []struct {
		name       string
		documentID string
		sourceFile string
		dataset    string
		limit      int
		want       int
	}{
		{name: "按文档标识", documentID: "CASE-A", dataset: "court", want: 3},
		{name: "按来源文件", sourceFile: "b.pdf", want: 1},
		{name: "文档标识优先于来源文件", documentID: "CASE-A", sourceFile: "b.pdf", want: 3},
		{name: "数据集不匹配", documentID: "CASE-A", dataset: "other", want: 0},
		{name: "限制数量", documentID: "CASE-A", limit: 2, want: 2},
		{name: "缺少标识", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := r.FetchDocument(ctx, tt.documentID, tt.sourceFile, tt.dataset, tt.limit)
			assert.Len(t, chunks, tt.want)
			for _, c := range chunks {
				if tt.documentID != "" {
					assert.Equal(t, tt.documentID, c.MetaString(model.MetaDocumentID))
				}
			}
		})
	}

	t.Run("取回失败返回空", func(t *testing.T) {
		idx := failingIndex{MemoryIndex: store.NewMemoryIndex("broken", 3), err: errors.New("down")}
		r := NewRetriever(idx, &stubEmbedder{}, 5)
		assert.Nil(t, r.FetchDocument(ctx, "CASE-A", "", "", 10))
	})
}

func TestRetrieverScopesToDatasetNamespace(t *testing.T) {
	ctx := context.Background()
	idx := seededIndex(t)
	stray := chunkRecord("s_p0_c0", []float32{1, 0, 0}, "court", "CASE-A", "a.pdf", 9, 0, "Misfiled copy.")
	stray.Namespace = "archive"
	require.NoError(t, idx.Upsert(ctx, []store.VectorRecord{stray}))

	r := NewRetriever(idx, &stubEmbedder{fallback: []float32{1, 0, 0}}, 10)

	t.Run("检索限定在数据集分区", func(t *testing.T) {
		res := r.Retrieve(ctx, "appeal", 10, "court")
		require.Nil(t, res.Err)
		require.Len(t, res.Chunks, 4)
		for _, c := range res.Chunks {
			assert.NotEqual(t, "s_p0_c0", c.ID)
		}
	})

	t.Run("取回限定在数据集分区", func(t *testing.T) {
		chunks := r.FetchDocument(ctx, "CASE-A", "", "court", 10)
		assert.Len(t, chunks, 3)
	})

	t.Run("不限数据集时包含全部分区", func(t *testing.T) {
		chunks := r.FetchDocument(ctx, "CASE-A", "", "", 10)
		assert.Len(t, chunks, 4)
	})
}
