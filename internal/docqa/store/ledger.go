// Package store 提供 docqa 服务的持久化层：摄取台账、向量索引与文件存储。
package store

import (
	"context"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/errors"
)

// 台账集合名称。
const (
	JobsCollection = "ocr_jobs"
	DocsCollection = "ocr_docs"
)

// DocSource 描述一次文档登记的来源信息。
type DocSource struct {
	JobID        string
	DatasetName  string
	SourceFileID string
	SourcePath   string
	SourceURL    string
}

// Ledger 摄取台账。
//
// 任务以 dataset_name 为业务主键，文档以 (dataset_name, source_file_id) 为业务主键，
// 两个 CreateOrUpdate 操作对同一主键重复调用时返回同一个 ID。
type Ledger interface {
	// EnsureIndexes 创建唯一索引与查询索引。
	// 已有重复数据导致唯一索引无法建立时返回 ErrLedgerConflict。
	EnsureIndexes(ctx context.Context) error

	// CreateOrUpdateJob 登记任务；已存在时计数清零、状态置为 running，保留 created_at。
	CreateOrUpdateJob(ctx context.Context, datasetName, inputRef, outputRef string) (string, error)
	// UpdateJobCounters 按字段累加任务计数。
	UpdateJobCounters(ctx context.Context, jobID string, delta model.JobCounters) error
	// UpdateJobEmbeddingCounters 按字段累加向量化计数。
	UpdateJobEmbeddingCounters(ctx context.Context, jobID string, delta model.EmbeddingCounters) error
	// FinishJob 写入终态。
	FinishJob(ctx context.Context, jobID string, status model.JobStatus) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// CreateOrUpdateDoc 登记文档；已存在时状态重置为 queued，清空计数与向量化字段，
	// 重新绑定到新的 job_id，保留 created_at。
	CreateOrUpdateDoc(ctx context.Context, src DocSource) (string, error)
	UpdateDocStatus(ctx context.Context, docID string, status model.DocStatus, message string) error
	UpdateDocOutput(ctx context.Context, docID, outputFileID, outputPath string) error
	// UpdateDocCounts 整体覆盖文档计数。
	UpdateDocCounts(ctx context.Context, docID string, counts model.DocCounts) error
	// MarkDocEmbedded 标记文档已向量化，count 必须为正且 indexName 非空。
	MarkDocEmbedded(ctx context.Context, docID string, count int, indexName string) error
	IsDocEmbedded(ctx context.Context, sourceFileID, datasetName string) (bool, error)
	// FindDoc 按业务主键查找文档，不存在时返回 nil, nil。
	FindDoc(ctx context.Context, datasetName, sourceFileID string) (*model.Doc, error)
	GetDoc(ctx context.Context, docID string) (*model.Doc, error)
	// ListDocs 按创建时间升序返回任务下的文档。
	ListDocs(ctx context.Context, jobID string) ([]*model.Doc, error)

	Close(ctx context.Context) error
}

func validateEmbedded(count int, indexName string) error {
	if count <= 0 {
		return errors.ErrInvalidEmbed.WithMessagef("embeddings count must be positive, got %d", count)
	}
	if indexName == "" {
		return errors.ErrInvalidEmbed.WithMessage("vector index name is required")
	}
	return nil
}
