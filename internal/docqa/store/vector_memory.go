package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
)

// MemoryIndex 基于余弦相似度的进程内向量索引。
// 与 Milvus 分区一致：指定命名空间时只在该命名空间内检索，为空时检索全部记录。
type MemoryIndex struct {
	name string
	dim  int

	mu         sync.RWMutex
	records    map[string]map[string]VectorRecord
	order      map[string][]string
	namespaces []string
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex 创建索引，dim 为 0 时不校验向量维度。
func NewMemoryIndex(name string, dim int) *MemoryIndex {
	return &MemoryIndex{
		name:    name,
		dim:     dim,
		records: make(map[string]map[string]VectorRecord),
		order:   make(map[string][]string),
	}
}

func (m *MemoryIndex) Name() string {
	return m.name
}

func (m *MemoryIndex) Upsert(_ context.Context, records []VectorRecord) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("vector record id is required")
		}
		if m.dim > 0 && len(r.Vector) != m.dim {
			return fmt.Errorf("vector %s has dimension %d, want %d", r.ID, len(r.Vector), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		ns := m.records[r.Namespace]
		if ns == nil {
			ns = make(map[string]VectorRecord)
			m.records[r.Namespace] = ns
			m.namespaces = append(m.namespaces, r.Namespace)
		}
		if _, exists := ns[r.ID]; !exists {
			m.order[r.Namespace] = append(m.order[r.Namespace], r.ID)
		}
		r.Metadata = maps.Clone(r.Metadata)
		r.Vector = slices.Clone(r.Vector)
		ns[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, q VectorQuery) ([]model.RetrievedChunk, error) {
	if q.TopK <= 0 {
		return []model.RetrievedChunk{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.RetrievedChunk
	m.scan(q.Namespace, func(r VectorRecord) bool {
		if matches(r.Metadata, q.Filter) {
			c := toChunk(r)
			c.Score = textutil.CosineSimilarity(q.Vector, r.Vector)
			out = append(out, c)
		}
		return true
	})

	sortByScore(out)
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	if out == nil {
		out = []model.RetrievedChunk{}
	}
	return out, nil
}

func (m *MemoryIndex) Fetch(_ context.Context, filter map[string]string, namespace string, limit int) ([]model.RetrievedChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RetrievedChunk, 0)
	m.scan(namespace, func(r VectorRecord) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if matches(r.Metadata, filter) {
			out = append(out, toChunk(r))
		}
		return true
	})
	return out, nil
}

// scan 按写入顺序遍历命名空间内的记录，namespace 为空时遍历全部命名空间。
// fn 返回 false 时停止。调用方需持有读锁。
func (m *MemoryIndex) scan(namespace string, fn func(r VectorRecord) bool) {
	spaces := m.namespaces
	if namespace != "" {
		spaces = []string{namespace}
	}
	for _, ns := range spaces {
		for _, rid := range m.order[ns] {
			if !fn(m.records[ns][rid]) {
				return
			}
		}
	}
}

// Len 返回命名空间内的记录数，namespace 为空时只统计未指定命名空间的记录。
func (m *MemoryIndex) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[namespace])
}

func matches(meta map[string]any, filter map[string]string) bool {
	probe := model.RetrievedChunk{Metadata: meta}
	for k, v := range filter {
		if _, ok := meta[k]; !ok || probe.MetaString(k) != v {
			return false
		}
	}
	return true
}

func toChunk(r VectorRecord) model.RetrievedChunk {
	meta := maps.Clone(r.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	return model.RetrievedChunk{
		ID:       r.ID,
		Text:     chunkText(meta),
		Metadata: meta,
	}
}
