package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
)

// Field names shared by every collection created through this package.
const (
	PrimaryField = "id"
	VectorField  = "embedding"
)

// Client wraps the Milvus SDK client with the collection, partition and
// search calls the vector index needs.
type Client struct {
	client *milvusclient.Client

	hnswM, hnswEfConstruction, searchEf int
}

// New connects to Milvus within opts.ConnectTimeout.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		APIKey:   opts.APIKey,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client:             c,
		hnswM:              opts.HNSWM,
		hnswEfConstruction: opts.HNSWEfConstruction,
		searchEf:           opts.SearchEf,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// CollectionSchema defines a collection keyed by a caller-supplied string id.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	// IDMaxLen bounds the VarChar primary key. Defaults to 512.
	IDMaxLen int
	// Metric defaults to COSINE.
	Metric     entity.MetricType
	MetaFields []MetaField
}

// MetaField defines a scalar field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

// EnsureCollection creates the collection and its HNSW index when missing,
// then loads it.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		if err := c.createCollection(ctx, schema); err != nil {
			return err
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

func (c *Client) createCollection(ctx context.Context, schema *CollectionSchema) error {
	idLen := schema.IDMaxLen
	if idLen <= 0 {
		idLen = 512
	}
	metric := schema.Metric
	if metric == "" {
		metric = entity.COSINE
	}

	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(false)

	collSchema.WithField(
		entity.NewField().
			WithName(PrimaryField).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(int64(idLen)).
			WithIsPrimaryKey(true),
	)

	collSchema.WithField(
		entity.NewField().
			WithName(VectorField).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)

	for _, f := range schema.MetaFields {
		field := entity.NewField().
			WithName(f.Name).
			WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewHNSWIndex(metric, c.hnswM, c.hnswEfConstruction)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, VectorField, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}
	return nil
}

// EnsurePartition creates the partition if it does not exist yet.
func (c *Client) EnsurePartition(ctx context.Context, collectionName, partition string) error {
	ok, err := c.client.HasPartition(ctx, milvusclient.NewHasPartitionOption(collectionName, partition))
	if err != nil {
		return fmt.Errorf("failed to check partition %q: %w", partition, err)
	}
	if ok {
		return nil
	}
	if err := c.client.CreatePartition(ctx, milvusclient.NewCreatePartitionOption(collectionName, partition)); err != nil {
		return fmt.Errorf("failed to create partition %q: %w", partition, err)
	}
	return nil
}

// HasPartition reports whether the partition exists.
func (c *Client) HasPartition(ctx context.Context, collectionName, partition string) (bool, error) {
	return c.client.HasPartition(ctx, milvusclient.NewHasPartitionOption(collectionName, partition))
}

// Upsert writes rows by primary key and flushes so they are searchable
// immediately. An empty partition targets the default partition.
func (c *Client) Upsert(ctx context.Context, collectionName, partition string, columns ...column.Column) (int64, error) {
	opt := milvusclient.NewColumnBasedInsertOption(collectionName, columns...)
	if partition != "" {
		opt = opt.WithPartition(partition)
	}

	result, err := c.client.Upsert(ctx, opt)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return 0, fmt.Errorf("failed to wait for flush: %w", err)
	}

	return result.UpsertCount, nil
}

// Row is one returned entity: its primary key, similarity score (zero for
// scalar queries) and the requested output fields.
type Row struct {
	ID     string
	Score  float32
	Fields map[string]any
}

// SearchRequest describes a filtered vector similarity search.
type SearchRequest struct {
	Collection   string
	Vector       []float32
	TopK         int
	Filter       string
	Partitions   []string
	OutputFields []string
}

// Search performs a vector similarity search.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Row, error) {
	opt := milvusclient.NewSearchOption(
		req.Collection,
		req.TopK,
		[]entity.Vector{entity.FloatVector(req.Vector)},
	).WithANNSField(VectorField).
		WithSearchParam("ef", strconv.Itoa(max(c.searchEf, req.TopK))).
		WithConsistencyLevel(entity.ClStrong).
		WithOutputFields(req.OutputFields...)
	if req.Filter != "" {
		opt = opt.WithFilter(req.Filter)
	}
	if len(req.Partitions) > 0 {
		opt = opt.WithPartitions(req.Partitions...)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []Row{}, nil
	}

	rs := results[0]
	rows := make([]Row, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		row, err := rowAt(rs.IDs, rs.Fields, i)
		if err != nil {
			return nil, err
		}
		row.Score = rs.Scores[i]
		rows = append(rows, row)
	}
	return rows, nil
}

// QueryRequest describes a scalar query without a vector.
type QueryRequest struct {
	Collection   string
	Filter       string
	Partitions   []string
	OutputFields []string
	Limit        int
}

// Query returns entities matching the filter expression.
func (c *Client) Query(ctx context.Context, req QueryRequest) ([]Row, error) {
	fields := append([]string{PrimaryField}, req.OutputFields...)
	opt := milvusclient.NewQueryOption(req.Collection).
		WithFilter(req.Filter).
		WithOutputFields(fields...).
		WithConsistencyLevel(entity.ClStrong)
	if req.Limit > 0 {
		opt = opt.WithLimit(req.Limit)
	}
	if len(req.Partitions) > 0 {
		opt = opt.WithPartitions(req.Partitions...)
	}

	rs, err := c.client.Query(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	n := rs.ResultCount
	if n == 0 && len(rs.Fields) > 0 {
		n = rs.Fields[0].Len()
	}

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		row, err := rowAt(rs.GetColumn(PrimaryField), rs.Fields, i)
		if err != nil {
			return nil, err
		}
		delete(row.Fields, PrimaryField)
		rows = append(rows, row)
	}
	return rows, nil
}

func rowAt(ids column.Column, fields []column.Column, i int) (Row, error) {
	row := Row{Fields: make(map[string]any, len(fields))}

	if ids != nil {
		v, err := ids.Get(i)
		if err != nil {
			return Row{}, fmt.Errorf("failed to read id at %d: %w", i, err)
		}
		row.ID = fmt.Sprint(v)
	}

	for _, col := range fields {
		v, err := col.Get(i)
		if err != nil {
			return Row{}, fmt.Errorf("failed to read field %s at %d: %w", col.Name(), i, err)
		}
		row.Fields[col.Name()] = v
	}
	return row, nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
