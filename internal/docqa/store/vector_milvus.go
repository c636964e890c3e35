package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// Milvus 集合字段。
const (
	fieldMetadata  = "metadata"
	maxTextBytes   = 65535
	maxIDBytes     = 512
	maxShortString = 1024
)

// 以独立列存储的元数据键，其余键写入 metadata JSON 列。
var (
	stringColumns = []string{model.MetaDatasetName, model.MetaDocumentID, model.MetaSourceFile}
	intColumns    = []string{model.MetaPageIndex, model.MetaChunkIndex}
	outputFields  = []string{
		model.MetaDatasetName, model.MetaDocumentID, model.MetaSourceFile,
		model.MetaPageIndex, model.MetaChunkIndex, model.MetaText, fieldMetadata,
	}
)

type milvusClient interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	EnsurePartition(ctx context.Context, collectionName, partition string) error
	HasPartition(ctx context.Context, collectionName, partition string) (bool, error)
	Upsert(ctx context.Context, collectionName, partition string, columns ...column.Column) (int64, error)
	Search(ctx context.Context, req milvus.SearchRequest) ([]milvus.Row, error)
	Query(ctx context.Context, req milvus.QueryRequest) ([]milvus.Row, error)
}

// MilvusIndex 基于 Milvus 的向量索引。命名空间映射为分区，写入时按需创建。
type MilvusIndex struct {
	client     milvusClient
	collection string
	dim        int
}

var _ VectorIndex = (*MilvusIndex)(nil)

// NewMilvusIndex 确保集合存在并已加载。
func NewMilvusIndex(ctx context.Context, client *milvus.Client, collection string, dim int) (*MilvusIndex, error) {
	return newMilvusIndex(ctx, client, collection, dim)
}

func newMilvusIndex(ctx context.Context, client milvusClient, collection string, dim int) (*MilvusIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	schema := &milvus.CollectionSchema{
		Name:        collection,
		Description: "docqa document chunks",
		Dimension:   dim,
		IDMaxLen:    maxIDBytes,
		Metric:      entity.COSINE,
		MetaFields: []milvus.MetaField{
			{Name: model.MetaDatasetName, DataType: entity.FieldTypeVarChar, MaxLen: 256},
			{Name: model.MetaDocumentID, DataType: entity.FieldTypeVarChar, MaxLen: maxIDBytes},
			{Name: model.MetaSourceFile, DataType: entity.FieldTypeVarChar, MaxLen: maxShortString},
			{Name: model.MetaPageIndex, DataType: entity.FieldTypeInt64},
			{Name: model.MetaChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: model.MetaText, DataType: entity.FieldTypeVarChar, MaxLen: maxTextBytes},
			{Name: fieldMetadata, DataType: entity.FieldTypeJSON},
		},
	}
	if err := client.EnsureCollection(ctx, schema); err != nil {
		return nil, err
	}

	return &MilvusIndex{client: client, collection: collection, dim: dim}, nil
}

func (m *MilvusIndex) Name() string {
	return m.collection
}

// Upsert 按命名空间分组写入。
func (m *MilvusIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	groups := make(map[string][]VectorRecord)
	var namespaces []string
	for _, r := range records {
		if len(r.Vector) != m.dim {
			return fmt.Errorf("vector %s has dimension %d, want %d", r.ID, len(r.Vector), m.dim)
		}
		if _, ok := groups[r.Namespace]; !ok {
			namespaces = append(namespaces, r.Namespace)
		}
		groups[r.Namespace] = append(groups[r.Namespace], r)
	}

	for _, ns := range namespaces {
		partition := ""
		if ns != "" {
			partition = partitionName(ns)
			if err := m.client.EnsurePartition(ctx, m.collection, partition); err != nil {
				return err
			}
		}

		cols, err := buildColumns(groups[ns], m.dim)
		if err != nil {
			return err
		}
		n, err := m.client.Upsert(ctx, m.collection, partition, cols...)
		if err != nil {
			return err
		}
		logger.Debugw("vectors upserted", "collection", m.collection, "partition", partition, "count", n)
	}
	return nil
}

func buildColumns(records []VectorRecord, dim int) ([]column.Column, error) {
	n := len(records)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	texts := make([]string, n)
	extras := make([][]byte, n)
	strs := make(map[string][]string, len(stringColumns))
	ints := make(map[string][]int64, len(intColumns))
	for _, k := range stringColumns {
		strs[k] = make([]string, n)
	}
	for _, k := range intColumns {
		ints[k] = make([]int64, n)
	}

	for i, r := range records {
		ids[i] = r.ID
		vectors[i] = r.Vector
		probe := model.RetrievedChunk{Metadata: r.Metadata}

		texts[i] = truncateBytes(probe.MetaString(model.MetaText), maxTextBytes)
		for _, k := range stringColumns {
			strs[k][i] = truncateBytes(probe.MetaString(k), maxShortString)
		}
		for _, k := range intColumns {
			if v, ok := probe.MetaInt(k); ok {
				ints[k][i] = int64(v)
			}
		}

		rest := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			if isColumnKey(k) {
				continue
			}
			rest[k] = v
		}
		raw, err := json.Marshal(rest)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		extras[i] = raw
	}

	cols := []column.Column{
		column.NewColumnVarChar(milvus.PrimaryField, ids),
		column.NewColumnFloatVector(milvus.VectorField, dim, vectors),
		column.NewColumnVarChar(model.MetaText, texts),
		column.NewColumnJSONBytes(fieldMetadata, extras),
	}
	for _, k := range stringColumns {
		cols = append(cols, column.NewColumnVarChar(k, strs[k]))
	}
	for _, k := range intColumns {
		cols = append(cols, column.NewColumnInt64(k, ints[k]))
	}
	return cols, nil
}

// Query 执行带过滤条件的相似度检索。
func (m *MilvusIndex) Query(ctx context.Context, q VectorQuery) ([]model.RetrievedChunk, error) {
	if q.TopK <= 0 {
		return []model.RetrievedChunk{}, nil
	}

	partitions, ok, err := m.partitions(ctx, q.Namespace)
	if err != nil || !ok {
		return []model.RetrievedChunk{}, err
	}

	rows, err := m.client.Search(ctx, milvus.SearchRequest{
		Collection:   m.collection,
		Vector:       q.Vector,
		TopK:         q.TopK,
		Filter:       buildFilter(q.Filter),
		Partitions:   partitions,
		OutputFields: outputFields,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]model.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, rowToChunk(row))
	}
	sortByScore(chunks)
	return chunks, nil
}

// Fetch 执行不带向量的标量查询。
func (m *MilvusIndex) Fetch(ctx context.Context, filter map[string]string, namespace string, limit int) ([]model.RetrievedChunk, error) {
	partitions, ok, err := m.partitions(ctx, namespace)
	if err != nil || !ok {
		return []model.RetrievedChunk{}, err
	}

	expr := buildFilter(filter)
	if expr == "" {
		expr = milvus.PrimaryField + ` != ""`
	}

	rows, err := m.client.Query(ctx, milvus.QueryRequest{
		Collection:   m.collection,
		Filter:       expr,
		Partitions:   partitions,
		OutputFields: outputFields,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]model.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, rowToChunk(row))
	}
	return chunks, nil
}

// partitions 返回查询使用的分区；命名空间对应的分区不存在时 ok=false。
func (m *MilvusIndex) partitions(ctx context.Context, namespace string) ([]string, bool, error) {
	if namespace == "" {
		return nil, true, nil
	}
	name := partitionName(namespace)
	exists, err := m.client.HasPartition(ctx, m.collection, name)
	if err != nil {
		return nil, false, err
	}
	return []string{name}, exists, nil
}

// buildFilter 将等值条件转换为 Milvus 布尔表达式，键按字典序排列。
func buildFilter(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		v := filter[k]
		switch {
		case slices.Contains(stringColumns, k) || k == model.MetaText:
			terms = append(terms, fmt.Sprintf("%s == %s", k, strconv.Quote(v)))
		case slices.Contains(intColumns, k):
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				terms = append(terms, fmt.Sprintf("%s == %d", k, n))
			} else {
				terms = append(terms, "false")
			}
		default:
			terms = append(terms, fmt.Sprintf("%s[%s] == %s", fieldMetadata, strconv.Quote(k), strconv.Quote(v)))
		}
	}
	return strings.Join(terms, " && ")
}

func rowToChunk(row milvus.Row) model.RetrievedChunk {
	meta := make(map[string]any, len(row.Fields)+8)

	if raw, ok := row.Fields[fieldMetadata].([]byte); ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			logger.Warnw("failed to decode vector metadata", "id", row.ID, "error", err.Error())
		}
	}

	for k, v := range row.Fields {
		if k == fieldMetadata {
			continue
		}
		if s, ok := v.(string); ok && s == "" && k != model.MetaText {
			continue
		}
		meta[k] = v
	}

	return model.RetrievedChunk{
		ID:       row.ID,
		Score:    float64(row.Score),
		Text:     chunkText(meta),
		Metadata: meta,
	}
}

// partitionName 将命名空间映射为合法的分区名。
func partitionName(namespace string) string {
	slug := strings.ReplaceAll(textutil.Slugify(namespace), "-", "_")
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return "ns_" + slug + "_" + textutil.HashString(namespace)[:8]
}

func isColumnKey(k string) bool {
	return k == model.MetaText || slices.Contains(stringColumns, k) || slices.Contains(intColumns, k)
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
