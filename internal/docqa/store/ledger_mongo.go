package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/component/mongodb"
	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/id"
)

// MongoDB 服务端错误码。
const (
	codeIndexAlreadyExists   = 68
	codeIndexOptionsConflict = 85
	codeIndexKeySpecConflict = 86
)

// MongoLedger 基于 MongoDB 的摄取台账。
type MongoLedger struct {
	client *mongodb.Client
	jobs   *mongo.Collection
	docs   *mongo.Collection
	ids    id.Generator
	now    func() time.Time
}

var _ Ledger = (*MongoLedger)(nil)

// NewMongoLedger 创建台账。
func NewMongoLedger(client *mongodb.Client) *MongoLedger {
	return &MongoLedger{
		client: client,
		jobs:   client.Collection(JobsCollection),
		docs:   client.Collection(DocsCollection),
		ids:    id.NewULIDGenerator(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes 逐个创建索引，唯一索引冲突视为致命错误。
func (l *MongoLedger) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{l.jobs, mongo.IndexModel{
			Keys:    bson.D{{Key: "dataset_name", Value: 1}},
			Options: options.Index().SetName("uniq_dataset_name").SetUnique(true),
		}},
		{l.jobs, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
		{l.jobs, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}},
		{l.docs, mongo.IndexModel{
			Keys:    bson.D{{Key: "dataset_name", Value: 1}, {Key: "source_file_id", Value: 1}},
			Options: options.Index().SetName("uniq_dataset_source_file").SetUnique(true),
		}},
		{l.docs, mongo.IndexModel{Keys: bson.D{{Key: "job_id", Value: 1}}}},
		{l.docs, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
	}

	for _, s := range specs {
		name, err := s.coll.Indexes().CreateOne(ctx, s.model)
		if err == nil {
			logger.Debugw("ledger index ready", "collection", s.coll.Name(), "index", name)
			continue
		}

		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrLedgerConflict.WithCause(
				fmt.Errorf("collection %s: %w", s.coll.Name(), err))
		}

		if isIndexExistsError(err) {
			logger.Warnw("ledger index already exists, skipped",
				"collection", s.coll.Name(),
				"error", err.Error(),
			)
			continue
		}

		return errors.ErrDatabase.WithCause(err)
	}

	return nil
}

func isIndexExistsError(err error) bool {
	var cmdErr mongo.CommandError
	if !stderrors.As(err, &cmdErr) {
		return false
	}
	switch cmdErr.Code {
	case codeIndexAlreadyExists, codeIndexOptionsConflict, codeIndexKeySpecConflict:
		return true
	}
	return false
}

// upsertID 执行 upsert 并返回记录主键。
// 并发首次插入触发唯一键冲突时，重试一次即命中已存在记录。
func (l *MongoLedger) upsertID(ctx context.Context, coll *mongo.Collection, filter, update bson.M) (string, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 1})

	var out struct {
		ID string `bson:"_id"`
	}

	err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", errors.ErrLedgerConflict.WithCause(err)
		}
		return "", errors.ErrDatabase.WithCause(err)
	}
	return out.ID, nil
}

// CreateOrUpdateJob 登记任务。
func (l *MongoLedger) CreateOrUpdateJob(ctx context.Context, datasetName, inputRef, outputRef string) (string, error) {
	now := l.now()
	update := bson.M{
		"$set": bson.M{
			"input_folder_ref":   inputRef,
			"output_folder_ref":  outputRef,
			"status":             model.JobRunning,
			"counters":           model.JobCounters{},
			"embedding_counters": model.EmbeddingCounters{},
			"updated_at":         now,
		},
		"$setOnInsert": bson.M{
			"_id":        l.ids.Generate(),
			"created_at": now,
		},
	}

	jobID, err := l.upsertID(ctx, l.jobs, bson.M{"dataset_name": datasetName}, update)
	if err != nil {
		return "", err
	}
	logger.Infow("ingestion job registered", "job_id", jobID, "dataset", datasetName)
	return jobID, nil
}

// UpdateJobCounters 使用 $inc 累加非零字段。
func (l *MongoLedger) UpdateJobCounters(ctx context.Context, jobID string, delta model.JobCounters) error {
	inc := bson.M{}
	addInc(inc, "counters.files_discovered", delta.FilesDiscovered)
	addInc(inc, "counters.files_processed", delta.FilesProcessed)
	addInc(inc, "counters.files_failed", delta.FilesFailed)
	addInc(inc, "counters.pages_processed", delta.PagesProcessed)
	addInc(inc, "counters.pages_without_text", delta.PagesWithoutText)
	addInc(inc, "counters.chunks_emitted", delta.ChunksEmitted)
	addInc(inc, "counters.lang_undetected_count", delta.LangUndetectedCount)
	return l.incJob(ctx, jobID, inc)
}

// UpdateJobEmbeddingCounters 使用 $inc 累加非零字段。
func (l *MongoLedger) UpdateJobEmbeddingCounters(ctx context.Context, jobID string, delta model.EmbeddingCounters) error {
	inc := bson.M{}
	addInc(inc, "embedding_counters.files_embedded", delta.FilesEmbedded)
	addInc(inc, "embedding_counters.embeddings_stored", delta.EmbeddingsStored)
	addInc(inc, "embedding_counters.files_embedding_failed", delta.FilesEmbeddingFailed)
	return l.incJob(ctx, jobID, inc)
}

func addInc(inc bson.M, key string, v int) {
	if v != 0 {
		inc[key] = v
	}
}

func (l *MongoLedger) incJob(ctx context.Context, jobID string, inc bson.M) error {
	update := bson.M{"$set": bson.M{"updated_at": l.now()}}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	return l.updateOne(ctx, l.jobs, jobID, update, errors.ErrJobNotFound)
}

// FinishJob 写入终态。
func (l *MongoLedger) FinishJob(ctx context.Context, jobID string, status model.JobStatus) error {
	update := bson.M{"$set": bson.M{"status": status, "updated_at": l.now()}}
	if err := l.updateOne(ctx, l.jobs, jobID, update, errors.ErrJobNotFound); err != nil {
		return err
	}
	logger.Infow("ingestion job finished", "job_id", jobID, "status", status)
	return nil
}

// GetJob 读取任务。
func (l *MongoLedger) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	if err := l.jobs.FindOne(ctx, bson.M{"_id": jobID}).Decode(&job); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrJobNotFound.WithMessagef("ingestion job %s not found", jobID)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &job, nil
}

// CreateOrUpdateDoc 登记文档。
func (l *MongoLedger) CreateOrUpdateDoc(ctx context.Context, src DocSource) (string, error) {
	now := l.now()
	update := bson.M{
		"$set": bson.M{
			"job_id":            src.JobID,
			"source_path":       src.SourcePath,
			"source_url":        src.SourceURL,
			"output_file_id":    "",
			"output_path":       "",
			"status":            model.DocQueued,
			"message":           "",
			"counts":            model.DocCounts{},
			"embedded":          false,
			"embeddings_count":  0,
			"vector_index_name": "",
			"embedded_at":       nil,
			"updated_at":        now,
		},
		"$setOnInsert": bson.M{
			"_id":        l.ids.Generate(),
			"created_at": now,
		},
	}

	filter := bson.M{"dataset_name": src.DatasetName, "source_file_id": src.SourceFileID}
	return l.upsertID(ctx, l.docs, filter, update)
}

// UpdateDocStatus 更新文档状态与说明。
func (l *MongoLedger) UpdateDocStatus(ctx context.Context, docID string, status model.DocStatus, message string) error {
	update := bson.M{"$set": bson.M{"status": status, "message": message, "updated_at": l.now()}}
	return l.updateOne(ctx, l.docs, docID, update, errors.ErrDocNotFound)
}

// UpdateDocOutput 记录 OCR 产物位置。
func (l *MongoLedger) UpdateDocOutput(ctx context.Context, docID, outputFileID, outputPath string) error {
	update := bson.M{"$set": bson.M{
		"output_file_id": outputFileID,
		"output_path":    outputPath,
		"updated_at":     l.now(),
	}}
	return l.updateOne(ctx, l.docs, docID, update, errors.ErrDocNotFound)
}

// UpdateDocCounts 逐字段 $set 覆盖计数。
func (l *MongoLedger) UpdateDocCounts(ctx context.Context, docID string, counts model.DocCounts) error {
	update := bson.M{"$set": bson.M{
		"counts.pages_total":           counts.PagesTotal,
		"counts.pages_without_text":    counts.PagesWithoutText,
		"counts.chunks_emitted":        counts.ChunksEmitted,
		"counts.lang_undetected_count": counts.LangUndetectedCount,
		"updated_at":                   l.now(),
	}}
	return l.updateOne(ctx, l.docs, docID, update, errors.ErrDocNotFound)
}

// MarkDocEmbedded 标记文档已向量化。
func (l *MongoLedger) MarkDocEmbedded(ctx context.Context, docID string, count int, indexName string) error {
	if err := validateEmbedded(count, indexName); err != nil {
		return err
	}
	now := l.now()
	update := bson.M{"$set": bson.M{
		"embedded":          true,
		"embeddings_count":  count,
		"vector_index_name": indexName,
		"embedded_at":       now,
		"updated_at":        now,
	}}
	return l.updateOne(ctx, l.docs, docID, update, errors.ErrDocNotFound)
}

// IsDocEmbedded 判断文档是否已向量化。
func (l *MongoLedger) IsDocEmbedded(ctx context.Context, sourceFileID, datasetName string) (bool, error) {
	n, err := l.docs.CountDocuments(ctx, bson.M{
		"dataset_name":   datasetName,
		"source_file_id": sourceFileID,
		"embedded":       true,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.ErrDatabase.WithCause(err)
	}
	return n > 0, nil
}

// FindDoc 按业务主键查找文档。
func (l *MongoLedger) FindDoc(ctx context.Context, datasetName, sourceFileID string) (*model.Doc, error) {
	var doc model.Doc
	err := l.docs.FindOne(ctx, bson.M{"dataset_name": datasetName, "source_file_id": sourceFileID}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &doc, nil
}

// GetDoc 读取文档。
func (l *MongoLedger) GetDoc(ctx context.Context, docID string) (*model.Doc, error) {
	var doc model.Doc
	if err := l.docs.FindOne(ctx, bson.M{"_id": docID}).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrDocNotFound.WithMessagef("ingestion document %s not found", docID)
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return &doc, nil
}

// ListDocs 返回任务下的文档。
func (l *MongoLedger) ListDocs(ctx context.Context, jobID string) ([]*model.Doc, error) {
	cur, err := l.docs.Find(ctx, bson.M{"job_id": jobID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}

	docs := make([]*model.Doc, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return docs, nil
}

// Close 关闭底层连接。
func (l *MongoLedger) Close(_ context.Context) error {
	return l.client.Close()
}

func (l *MongoLedger) updateOne(ctx context.Context, coll *mongo.Collection, recordID string, update bson.M, notFound *errors.Errno) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": recordID}, update)
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	if res.MatchedCount == 0 {
		return notFound.WithMessagef("%s %s not found", coll.Name(), recordID)
	}
	return nil
}
