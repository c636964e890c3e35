package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

// 检索失败时返回给调用方的说明。
const (
	msgEmbedFailed = "Unable to generate embedding for query text."
	msgQueryFailed = "Vector index query failed. See logs for details."
)

// RetrievalError 检索层失败。Message 可直接展示给用户，Err 仅用于日志。
type RetrievalError struct {
	Message string
	Err     error
}

func (e *RetrievalError) Error() string {
	return e.Message
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Retrieval 一次检索的结果，Err 非空时 Chunks 为空。
type Retrieval struct {
	Chunks []model.RetrievedChunk
	Err    *RetrievalError
}

// Retriever 负责查询向量化与向量检索。
type Retriever struct {
	index    store.VectorIndex
	embedder llm.EmbeddingProvider
	topK     int
}

// NewRetriever 创建检索器，topK 为未指定数量时的默认值。
func NewRetriever(index store.VectorIndex, embedder llm.EmbeddingProvider, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{index: index, embedder: embedder, topK: topK}
}

// Retrieve 检索与 query 最相关的块，dataset 非空时只在该数据集的命名空间内检索，
// 同时保留 dataset_name 等值过滤。
// 空查询返回空结果。
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, dataset string) Retrieval {
	if strings.TrimSpace(query) == "" {
		logger.Warnw("empty query received for retrieval")
		return Retrieval{}
	}
	if topK <= 0 {
		topK = r.topK
	}

	var filter map[string]string
	if dataset != "" {
		filter = map[string]string{model.MetaDatasetName: dataset}
	}

	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		logger.Errorw("failed to embed query", "error", err.Error())
		return Retrieval{Err: &RetrievalError{Message: msgEmbedFailed, Err: errors.ErrRetrieval.WithCause(err)}}
	}

	chunks, err := r.index.Query(ctx, store.VectorQuery{Vector: vec, TopK: topK, Filter: filter, Namespace: dataset})
	if err != nil {
		logger.Errorw("vector query failed", "index", r.index.Name(), "error", err.Error())
		return Retrieval{Err: &RetrievalError{Message: msgQueryFailed, Err: errors.ErrRetrieval.WithCause(err)}}
	}

	if len(chunks) > 0 {
		top := chunks[0]
		logger.Infow("retrieval completed",
			"returned", len(chunks),
			"top_k", topK,
			"dataset", dataset,
			"top_score", textutil.RoundTo(top.Score, 4),
			"top_source", top.MetaString(model.MetaSourceFile),
			"top_preview", textutil.Preview(top.Text, 200),
		)
	} else {
		logger.Infow("retrieval completed", "returned", 0, "top_k", topK, "dataset", dataset)
	}
	return Retrieval{Chunks: chunks}
}

// FetchDocument 按 document_id（缺失时按 source_file）取回整篇文档的块，最多 limit 条。
// 取回失败只记录日志并返回空结果。
func (r *Retriever) FetchDocument(ctx context.Context, documentID, sourceFile, dataset string, limit int) []model.RetrievedChunk {
	filter := map[string]string{}
	switch {
	case documentID != "":
		filter[model.MetaDocumentID] = documentID
	case sourceFile != "":
		filter[model.MetaSourceFile] = sourceFile
	default:
		logger.Warnw("full document fetch requested without document identifiers")
		return nil
	}
	if dataset != "" {
		filter[model.MetaDatasetName] = dataset
	}

	chunks, err := r.index.Fetch(ctx, filter, dataset, limit)
	if err != nil {
		logger.Errorw("full document fetch failed", "filter", filter, "error", err.Error())
		return nil
	}
	logger.Infow("full document fetched", "document_id", documentID, "source_file", sourceFile, "chunks", len(chunks))
	return chunks
}
