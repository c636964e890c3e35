package store

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/milvus"
)

func rec(id string, vec []float32, meta map[string]any) VectorRecord {
	return VectorRecord{ID: id, Vector: vec, Metadata: meta}
}

func TestMemoryIndexQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("mem", 2)

	require.NoError(t, idx.Upsert(ctx, []VectorRecord{
		rec("a", []float32{1, 0}, map[string]any{model.MetaDatasetName: "cases", model.MetaText: "alpha"}),
		rec("b", []float32{0.7, 0.7}, map[string]any{model.MetaDatasetName: "cases", "chunk": "bravo"}),
		rec("c", []float32{1, 0.01}, map[string]any{model.MetaDatasetName: "other", model.MetaText: "charlie"}),
	}))

	got, err := idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 5, Filter: map[string]string{model.MetaDatasetName: "cases"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "alpha", got[0].Text)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "bravo", got[1].Text, "缺少 text 时回退到 chunk")
	assert.Greater(t, got[0].Score, got[1].Score)

	got, err = idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 3, Namespace: "missing"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryIndexUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("mem", 0)

	require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec("a", []float32{1}, map[string]any{model.MetaText: "v1"})}))
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec("a", []float32{1}, map[string]any{model.MetaText: "v2"})}))
	assert.Equal(t, 1, idx.Len(""))

	got, err := idx.Fetch(ctx, nil, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Text)
}

func TestMemoryIndexRejectsBadRecords(t *testing.T) {
	idx := NewMemoryIndex("mem", 3)
	assert.Error(t, idx.Upsert(context.Background(), []VectorRecord{rec("a", []float32{1}, nil)}))
	assert.Error(t, idx.Upsert(context.Background(), []VectorRecord{rec("", []float32{1, 2, 3}, nil)}))
}

func TestMemoryIndexFetch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("mem", 0)
	for i, id := range []string{"d1_p1_c0", "d1_p1_c1", "d2_p1_c0"} {
		doc := "d1"
		if i == 2 {
			doc = "d2"
		}
		require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec(id, []float32{1}, map[string]any{
			model.MetaDocumentID: doc, model.MetaChunkIndex: i,
		})}))
	}

	got, err := idx.Fetch(ctx, map[string]string{model.MetaDocumentID: "d1"}, "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = idx.Fetch(ctx, map[string]string{model.MetaDocumentID: "d1"}, "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = idx.Fetch(ctx, map[string]string{model.MetaChunkIndex: "2"}, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d2_p1_c0", got[0].ID)
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter map[string]string
		want   string
	}{
		{"空条件", nil, ""},
		{"独立列", map[string]string{model.MetaDatasetName: "cases"}, `dataset_name == "cases"`},
		{"引号转义", map[string]string{model.MetaSourceFile: `a"b.pdf`}, `source_file == "a\"b.pdf"`},
		{"整数列", map[string]string{model.MetaPageIndex: "3"}, `page_index == 3`},
		{"非法整数", map[string]string{model.MetaPageIndex: "x"}, `false`},
		{"JSON 字段", map[string]string{"court_name": "High Court"}, `metadata["court_name"] == "High Court"`},
		{
			"多条件按键排序",
			map[string]string{model.MetaDocumentID: "d1", model.MetaDatasetName: "cases"},
			`dataset_name == "cases" && document_id == "d1"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFilter(tt.filter))
		})
	}
}

func TestPartitionName(t *testing.T) {
	a := partitionName("Supreme Court 2024")
	b := partitionName("supreme-court-2024")
	assert.Regexp(t, `^ns_[a-z0-9_]+_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b, "不同命名空间不会映射到同一分区")
	assert.Equal(t, a, partitionName("Supreme Court 2024"))
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 5))
	assert.Equal(t, "ab", truncateBytes("abc", 2))
	// "é" 占两个字节，不能在中间截断
	assert.Equal(t, "a", truncateBytes("aé", 2))
}

type fakeMilvus struct {
	schema     *milvus.CollectionSchema
	partitions map[string]bool
	upserts    map[string][]column.Column
	search     milvus.SearchRequest
	query      milvus.QueryRequest
	rows       []milvus.Row
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{partitions: map[string]bool{}, upserts: map[string][]column.Column{}}
}

func (f *fakeMilvus) EnsureCollection(_ context.Context, schema *milvus.CollectionSchema) error {
	f.schema = schema
	return nil
}

func (f *fakeMilvus) EnsurePartition(_ context.Context, _, partition string) error {
	f.partitions[partition] = true
	return nil
}

func (f *fakeMilvus) HasPartition(_ context.Context, _, partition string) (bool, error) {
	return f.partitions[partition], nil
}

func (f *fakeMilvus) Upsert(_ context.Context, _, partition string, columns ...column.Column) (int64, error) {
	f.upserts[partition] = columns
	return int64(columns[0].Len()), nil
}

func (f *fakeMilvus) Search(_ context.Context, req milvus.SearchRequest) ([]milvus.Row, error) {
	f.search = req
	return f.rows, nil
}

func (f *fakeMilvus) Query(_ context.Context, req milvus.QueryRequest) ([]milvus.Row, error) {
	f.query = req
	return f.rows, nil
}

func columnByName(cols []column.Column, name string) column.Column {
	for _, c := range cols {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func TestMilvusIndexUpsertColumns(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	idx, err := newMilvusIndex(ctx, fake, "docqa_chunks", 2)
	require.NoError(t, err)
	assert.Equal(t, "docqa_chunks", idx.Name())
	assert.Equal(t, 2, fake.schema.Dimension)

	err = idx.Upsert(ctx, []VectorRecord{
		{ID: "d1_p1_c0", Vector: []float32{1, 0}, Metadata: map[string]any{
			model.MetaDatasetName: "cases",
			model.MetaDocumentID:  "d1",
			model.MetaPageIndex:   1,
			model.MetaChunkIndex:  0,
			model.MetaText:        "hello",
			"court_name":          "High Court",
		}},
		{ID: "x", Vector: []float32{0, 1}, Namespace: "cases", Metadata: map[string]any{model.MetaText: "ns"}},
	})
	require.NoError(t, err)

	cols := fake.upserts[""]
	require.NotNil(t, cols)
	v, err := columnByName(cols, model.MetaDatasetName).Get(0)
	require.NoError(t, err)
	assert.Equal(t, "cases", v)
	v, err = columnByName(cols, model.MetaPageIndex).Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	v, err = columnByName(cols, fieldMetadata).Get(0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"court_name":"High Court"}`, string(v.([]byte)))

	assert.Contains(t, fake.upserts, partitionName("cases"), "命名空间写入对应分区")

	assert.Error(t, idx.Upsert(ctx, []VectorRecord{{ID: "bad", Vector: []float32{1}}}))
}

func TestMilvusIndexQuery(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	idx, err := newMilvusIndex(ctx, fake, "docqa_chunks", 2)
	require.NoError(t, err)

	fake.rows = []milvus.Row{
		{ID: "low", Score: 0.2, Fields: map[string]any{model.MetaText: "low", fieldMetadata: []byte(`{"title":"T"}`)}},
		{ID: "high", Score: 0.9, Fields: map[string]any{
			model.MetaText: "high", model.MetaPageIndex: int64(2), model.MetaSourceFile: "",
		}},
	}

	got, err := idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 2, Filter: map[string]string{model.MetaDatasetName: "cases"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
	assert.Equal(t, `dataset_name == "cases"`, fake.search.Filter)
	assert.Empty(t, fake.search.Partitions)

	p, ok := got[0].MetaInt(model.MetaPageIndex)
	assert.True(t, ok)
	assert.Equal(t, 2, p)
	_, hasSource := got[0].Metadata[model.MetaSourceFile]
	assert.False(t, hasSource, "空字符串列不进入元数据")
	assert.Equal(t, "T", got[1].MetaString(model.MetaTitle))

	got, err = idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 2, Namespace: "never-written"})
	require.NoError(t, err)
	assert.Empty(t, got, "分区不存在时返回空结果")
}

func TestMilvusIndexFetch(t *testing.T) {
	ctx := context.Background()
	fake := newFakeMilvus()
	idx, err := newMilvusIndex(ctx, fake, "docqa_chunks", 2)
	require.NoError(t, err)

	fake.rows = []milvus.Row{{ID: "a", Fields: map[string]any{model.MetaText: "t"}}}
	got, err := idx.Fetch(ctx, map[string]string{model.MetaDocumentID: "d1"}, "", 500)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, `document_id == "d1"`, fake.query.Filter)
	assert.Equal(t, 500, fake.query.Limit)

	_, err = idx.Fetch(ctx, nil, "", 10)
	require.NoError(t, err)
	assert.Equal(t, `id != ""`, fake.query.Filter)
}

func TestNewMilvusIndexRejectsDimension(t *testing.T) {
	_, err := newMilvusIndex(context.Background(), newFakeMilvus(), "c", 0)
	assert.Error(t, err)
}

func TestMemoryIndexNamespaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex("mem", 0)

	a := rec("a", []float32{1, 0}, map[string]any{model.MetaText: "alpha"})
	a.Namespace = "court"
	b := rec("b", []float32{1, 0}, map[string]any{model.MetaText: "bravo"})
	b.Namespace = "tax"
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{a, b}))

	tests := []struct {
		name      string
		namespace string
		wantIDs   []string
	}{
		{name: "单个命名空间", namespace: "court", wantIDs: []string{"a"}},
		{name: "空命名空间遍历全部", namespace: "", wantIDs: []string{"a", "b"}},
		{name: "不存在的命名空间", namespace: "missing", wantIDs: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idx.Query(ctx, VectorQuery{Vector: []float32{1, 0}, TopK: 5, Namespace: tt.namespace})
			require.NoError(t, err)
			var ids []string
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)

			fetched, err := idx.Fetch(ctx, nil, tt.namespace, 0)
			require.NoError(t, err)
			assert.Len(t, fetched, len(tt.wantIDs))
		})
	}

	assert.Equal(t, 1, idx.Len("court"))
	assert.Zero(t, idx.Len(""))
}
