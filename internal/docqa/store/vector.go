package store

import (
	"context"
	"sort"

	"github.com/kart-io/docqa/internal/model"
)

// VectorRecord 一条待写入的向量。
type VectorRecord struct {
	ID        string
	Vector    []float32
	Metadata  map[string]any
	Namespace string
}

// VectorQuery 相似度检索请求。Filter 中的条件按等值与关系组合。
type VectorQuery struct {
	Vector    []float32
	TopK      int
	Filter    map[string]string
	Namespace string
}

// VectorIndex 向量索引。
//
// 查询结果在边界处统一转换为 model.RetrievedChunk，并按得分降序排列。
type VectorIndex interface {
	// Name 返回索引名称，记录在台账的 vector_index_name 中。
	Name() string
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, q VectorQuery) ([]model.RetrievedChunk, error)
	// Fetch 只按元数据过滤取回记录，最多 limit 条，顺序不保证。
	Fetch(ctx context.Context, filter map[string]string, namespace string, limit int) ([]model.RetrievedChunk, error)
}

// sortByScore 按得分降序稳定排序。
func sortByScore(chunks []model.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

// chunkText 优先取 text 元数据，其次 chunk。
func chunkText(meta map[string]any) string {
	for _, key := range []string{model.MetaText, "chunk"} {
		if s, ok := meta[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
