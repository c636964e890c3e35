package biz

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/chunker"
	"github.com/kart-io/docqa/internal/pkg/rag/docproc"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/errors"
	ctxlog "github.com/kart-io/docqa/pkg/infra/logger"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	obsmetrics "github.com/kart-io/docqa/pkg/observability/metrics"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// DefaultOutputRootName OCR 输出根目录名称。
const DefaultOutputRootName = "Optical Character Recognition"

const (
	embedBatchSize = 32
	vectorIDPrefix = 50
	jsonMimeType   = "application/json"
)

// 文档状态说明。
const (
	msgDownloading     = "Downloading file"
	msgNoText          = "No extractable text found"
	msgJSONExists      = "OCR JSON already exists"
	msgEmbedding       = "Extracting metadata and generating embeddings"
	msgEmbedded        = "Processed and embedded successfully"
	msgEmbeddingFailed = "OCR completed but embedding failed: %v"
	msgEmbedSkipped    = "OCR completed, embedding skipped (already embedded)"
)

// IngestionConfig 摄取流水线配置。
type IngestionConfig struct {
	// DefaultFolderID 请求未指定文件夹时使用。
	DefaultFolderID  string
	OutputRootName   string
	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
	MetadataKeys     []string
}

// IngestionRequest 摄取请求。
type IngestionRequest struct {
	DatasetName  string   `json:"dataset_name" binding:"required,dataset"`
	FolderID     string   `json:"folder_id"`
	ChunkSize    int      `json:"chunk_size" binding:"omitempty,min=1"`
	ChunkOverlap *int     `json:"chunk_overlap" binding:"omitempty,min=0"`
	Force        bool     `json:"force"`
	MetadataKeys []string `json:"metadata_keys"`
}

// IngestionResult 摄取结果。
type IngestionResult struct {
	Status               string          `json:"status"`
	DatasetName          string          `json:"dataset_name"`
	JobID                string          `json:"job_id"`
	JobStatus            model.JobStatus `json:"job_status"`
	FilesDiscovered      int             `json:"files_discovered"`
	FilesProcessed       int             `json:"files_processed"`
	FilesFailed          int             `json:"files_failed"`
	FilesEmbedded        int             `json:"files_embedded"`
	FilesSkipped         int             `json:"files_skipped"`
	FilesEmbeddingFailed int             `json:"files_embedding_failed"`
	EmbeddingsStored     int             `json:"embeddings_stored"`
	VectorIndex          string          `json:"vector_index"`
	Message              string          `json:"message"`
}

// tally 本次运行的计数，由多个 worker 并发更新。
type tally struct {
	mu sync.Mutex
	IngestionResult
}

func (t *tally) add(fn func(r *IngestionResult)) {
	t.mu.Lock()
	fn(&t.IngestionResult)
	t.mu.Unlock()
}

// run 单次摄取的上下文。
type run struct {
	req          IngestionRequest
	jobID        string
	outputFolder string
	splitter     *chunker.Splitter
	tally        *tally
	cancel       context.CancelCauseFunc
}

// IngestionService 摄取流水线：列举文件、抽取分块、写出 OCR JSON、抽取元数据并写入向量。
type IngestionService struct {
	ledger    store.Ledger
	blobs     store.BlobStore
	index     store.VectorIndex
	processor *docproc.Processor
	embedder  llm.EmbeddingProvider
	extractor *MetadataExtractor
	workers   *pool.Pool
	config    IngestionConfig
	metrics   *metrics.Metrics
}

// IngestionDeps 摄取服务依赖。Workers 为 nil 时顺序处理文档。
type IngestionDeps struct {
	Ledger    store.Ledger
	Blobs     store.BlobStore
	Index     store.VectorIndex
	Processor *docproc.Processor
	Embedder  llm.EmbeddingProvider
	Extractor *MetadataExtractor
	Workers   *pool.Pool
	Metrics   *metrics.Metrics
}

// NewIngestionService 创建摄取服务。
func NewIngestionService(deps IngestionDeps, config IngestionConfig) *IngestionService {
	if config.OutputRootName == "" {
		config.OutputRootName = DefaultOutputRootName
	}
	if config.EmbedConcurrency <= 0 {
		config.EmbedConcurrency = 4
	}
	if deps.Extractor == nil {
		deps.Extractor = NewMetadataExtractor(nil, config.MetadataKeys)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(obsmetrics.NewRegistry())
	}
	return &IngestionService{
		ledger:    deps.Ledger,
		blobs:     deps.Blobs,
		index:     deps.Index,
		processor: deps.Processor,
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		workers:   deps.Workers,
		config:    config,
		metrics:   deps.Metrics,
	}
}

// Run 执行一次摄取。单个文档的失败记录在台账中，不会中断整批；
// Force 模式下第一个失败会终止本次运行。
func (s *IngestionService) Run(ctx context.Context, req IngestionRequest) (_ *IngestionResult, err error) {
	req.DatasetName = strings.TrimSpace(req.DatasetName)
	if req.DatasetName == "" {
		return nil, errors.ErrDocQAInvalidRequest.WithMessage("dataset_name is required")
	}
	folderID := req.FolderID
	if folderID == "" {
		folderID = s.config.DefaultFolderID
	}
	if folderID == "" {
		return nil, errors.ErrConfigMissing.WithMessage("folder_id must be provided or configured")
	}

	splitter, err := s.splitterFor(req)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Infow("starting ingestion pipeline", "dataset", req.DatasetName, "folder", folderID, "force", req.Force)
	defer s.metrics.StartIngestion()()

	ctx, span := tracing.StartSpan(ctx, "docqa.ingestion",
		attribute.String("docqa.dataset", req.DatasetName),
		attribute.String("docqa.folder", folderID),
		attribute.Bool("docqa.force", req.Force),
	)
	defer func() {
		tracing.RecordError(ctx, err)
		span.End()
	}()

	outputRoot, err := s.blobs.EnsureFolder(ctx, s.config.OutputRootName, folderID)
	if err != nil {
		return nil, fmt.Errorf("ensure output root folder: %w", err)
	}
	outputFolder, err := s.blobs.EnsureFolder(ctx, req.DatasetName, outputRoot)
	if err != nil {
		return nil, fmt.Errorf("ensure output dataset folder: %w", err)
	}

	jobID, err := s.ledger.CreateOrUpdateJob(ctx, req.DatasetName, folderID, outputFolder)
	if err != nil {
		return nil, err
	}
	ctx = ctxlog.WithFields(ctx, "job_id", jobID)
	span.SetAttributes(attribute.String("docqa.job_id", jobID))

	files, err := s.blobs.ListFiles(ctx, folderID, true)
	if err != nil {
		ctxlog.FromContext(ctx).Errorw("failed to list files", "folder", folderID, "error", err.Error())
		s.finish(ctx, jobID, model.JobFailed)
		return nil, fmt.Errorf("access folder %q: %w", folderID, err)
	}
	files = withoutOutput(files, s.config.OutputRootName)
	ctxlog.FromContext(ctx).Infow("files discovered", "dataset", req.DatasetName, "count", len(files))

	if err := s.ledger.UpdateJobCounters(ctx, jobID, model.JobCounters{FilesDiscovered: len(files)}); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		req:          req,
		jobID:        jobID,
		outputFolder: outputFolder,
		splitter:     splitter,
		tally:        &tally{},
		cancel:       cancel,
	}
	r.tally.FilesDiscovered = len(files)

	s.dispatch(runCtx, r, files)

	if cause := context.Cause(runCtx); cause != nil && ctx.Err() == nil {
		s.finish(ctx, jobID, model.JobFailed)
		return nil, errors.ErrIngestion.WithCause(cause)
	}

	res := r.tally.IngestionResult
	res.JobStatus = finalStatus(res)
	s.finish(ctx, jobID, res.JobStatus)

	res.Status = "success"
	res.DatasetName = req.DatasetName
	res.JobID = jobID
	res.VectorIndex = s.index.Name()
	res.Message = "Ingestion pipeline completed successfully."

	ctxlog.FromContext(ctx).Infow("ingestion pipeline completed",
		"dataset", req.DatasetName,
		"job_status", res.JobStatus,
		"files_processed", res.FilesProcessed,
		"files_failed", res.FilesFailed,
		"files_embedded", res.FilesEmbedded,
		"embeddings_stored", res.EmbeddingsStored,
	)
	return &res, nil
}

// splitterFor 未指定 chunk_size 时使用配置的大小与重叠；显式给出的 chunk_overlap（包括 0）总是生效。
func (s *IngestionService) splitterFor(req IngestionRequest) (*chunker.Splitter, error) {
	size, overlap := req.ChunkSize, 0
	if size <= 0 {
		size, overlap = s.config.ChunkSize, s.config.ChunkOverlap
	}
	if req.ChunkOverlap != nil {
		overlap = *req.ChunkOverlap
	}
	if size <= 0 {
		return nil, nil
	}
	sp, err := chunker.New(size, overlap)
	if err != nil {
		return nil, errors.ErrDocQAInvalidRequest.WithCause(err)
	}
	return sp, nil
}

// dispatch 在 worker 池中并发处理文件，池为空时顺序处理。
func (s *IngestionService) dispatch(ctx context.Context, r *run, files []store.BlobFile) {
	if s.workers == nil {
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			s.processFile(ctx, r, f)
		}
		return
	}

	var wg sync.WaitGroup
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := s.workers.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			s.processFile(ctx, r, f)
		})
		if err != nil {
			wg.Done()
			ctxlog.FromContext(ctx).Errorw("failed to schedule document", "file", f.Name, "error", err.Error())
			if ctx.Err() == nil {
				r.cancel(err)
			}
			break
		}
	}
	wg.Wait()
}

// processFile 处理单个文件并更新台账。
func (s *IngestionService) processFile(ctx context.Context, r *run, f store.BlobFile) {
	dataset := r.req.DatasetName
	log := []any{"file", f.Name, "dataset", dataset}
	ctxlog.FromContext(ctx).Infow("processing file", log...)

	var (
		prior         *model.Doc
		skipEmbedding bool
	)
	if !r.req.Force {
		embedded, err := s.ledger.IsDocEmbedded(ctx, f.ID, dataset)
		if err != nil {
			ctxlog.FromContext(ctx).Warnw("embedded check failed", append(log, "error", err.Error())...)
		}
		if embedded {
			if prior, err = s.ledger.FindDoc(ctx, dataset, f.ID); err == nil && prior != nil {
				skipEmbedding = true
				ctxlog.FromContext(ctx).Infow("skipping embedding, already embedded", log...)
			}
		}
	}

	docID, err := s.ledger.CreateOrUpdateDoc(ctx, store.DocSource{
		JobID:        r.jobID,
		DatasetName:  dataset,
		SourceFileID: f.ID,
		SourcePath:   f.Path,
		SourceURL:    f.URL,
	})
	if err != nil {
		s.fail(ctx, r, "", f, err)
		return
	}

	outDir, outName, outPath := outputLocation(dataset, f)
	outFolder, err := store.EnsureFolderPath(ctx, s.blobs, outDir, r.outputFolder)
	if err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}

	existing := ""
	if !r.req.Force {
		if existing, err = s.blobs.FileExists(ctx, outName, outFolder); err != nil {
			ctxlog.FromContext(ctx).Warnw("output existence check failed", append(log, "error", err.Error())...)
			existing = ""
		}
	}

	if err := s.ledger.UpdateDocStatus(ctx, docID, model.DocProcessing, msgDownloading); err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}

	data, err := s.blobs.Download(ctx, f.ID)
	if err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}

	res, err := s.processor.Process(ctx, data, f.Name, docproc.ProcessOptions{
		MimeType:  f.MimeType,
		SourceURL: f.URL,
		Splitter:  r.splitter,
	})
	if err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}

	counts := model.DocCounts{
		PagesTotal:          res.TotalPageCount,
		PagesWithoutText:    res.PagesWithoutText,
		ChunksEmitted:       res.ChunksEmitted,
		LangUndetectedCount: boolCount(res.LangUndetected),
	}

	if res.ChunksEmitted == 0 {
		s.noText(ctx, r, docID, f, counts)
		return
	}

	if existing == "" || r.req.Force {
		payload, err := json.MarshalIndent(res.Chunks, "", "  ")
		if err != nil {
			s.fail(ctx, r, docID, f, err)
			return
		}
		up, err := s.blobs.UploadBytes(ctx, payload, outName, outFolder, jsonMimeType)
		if err != nil {
			s.fail(ctx, r, docID, f, err)
			return
		}
		if err := s.ledger.UpdateDocOutput(ctx, docID, up.FileID, outPath); err != nil {
			s.fail(ctx, r, docID, f, err)
			return
		}
	} else {
		ctxlog.FromContext(ctx).Infow("OCR JSON already exists, skipping upload", log...)
		if err := s.ledger.UpdateDocOutput(ctx, docID, existing, outPath); err != nil {
			s.fail(ctx, r, docID, f, err)
			return
		}
		if err := s.ledger.UpdateDocStatus(ctx, docID, model.DocSkipped, msgJSONExists); err != nil {
			s.fail(ctx, r, docID, f, err)
			return
		}
	}

	if err := s.ledger.UpdateDocCounts(ctx, docID, counts); err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}
	if err := s.ledger.UpdateJobCounters(ctx, r.jobID, model.JobCounters{
		FilesProcessed:      1,
		PagesProcessed:      counts.PagesTotal,
		PagesWithoutText:    counts.PagesWithoutText,
		ChunksEmitted:       counts.ChunksEmitted,
		LangUndetectedCount: counts.LangUndetectedCount,
	}); err != nil {
		s.fail(ctx, r, docID, f, err)
		return
	}
	r.tally.add(func(t *IngestionResult) { t.FilesProcessed++ })
	s.metrics.RecordDocument(res.ChunksEmitted, nil)

	if skipEmbedding {
		s.keepEmbedded(ctx, r, docID, f, prior)
		return
	}
	s.embed(ctx, r, docID, f, res)
}

// keepEmbedded 恢复重置前的向量化字段，文档仍视为已向量化。
func (s *IngestionService) keepEmbedded(ctx context.Context, r *run, docID string, f store.BlobFile, prior *model.Doc) {
	if err := s.ledger.MarkDocEmbedded(ctx, docID, prior.EmbeddingsCount, prior.VectorIndexName); err != nil {
		ctxlog.FromContext(ctx).Warnw("failed to restore embedded state", "file", f.Name, "error", err.Error())
	}
	if err := s.ledger.UpdateDocStatus(ctx, docID, model.DocOK, msgEmbedSkipped); err != nil {
		ctxlog.FromContext(ctx).Warnw("failed to update doc status", "file", f.Name, "error", err.Error())
	}
	r.tally.add(func(t *IngestionResult) { t.FilesSkipped++ })
}

// embed 抽取元数据、生成向量并写入索引。
func (s *IngestionService) embed(ctx context.Context, r *run, docID string, f store.BlobFile, res *model.DocumentResult) {
	_ = s.ledger.UpdateDocStatus(ctx, docID, model.DocProcessing, msgEmbedding)

	stored, err := s.vectorize(ctx, r, f, res)
	s.metrics.RecordEmbedding(stored, err)
	if err != nil {
		ctxlog.FromContext(ctx).Errorw("embedding failed", "file", f.Name, "error", err.Error())
		_ = s.ledger.UpdateDocStatus(ctx, docID, model.DocOK, fmt.Sprintf(msgEmbeddingFailed, err))
		_ = s.ledger.UpdateJobEmbeddingCounters(ctx, r.jobID, model.EmbeddingCounters{FilesEmbeddingFailed: 1})
		r.tally.add(func(t *IngestionResult) { t.FilesEmbeddingFailed++ })
		if r.req.Force {
			r.cancel(fmt.Errorf("embed %s: %w", f.Name, err))
		}
		return
	}

	if err := s.ledger.MarkDocEmbedded(ctx, docID, stored, s.index.Name()); err != nil {
		ctxlog.FromContext(ctx).Errorw("failed to mark doc embedded", "file", f.Name, "error", err.Error())
	}
	if err := s.ledger.UpdateJobEmbeddingCounters(ctx, r.jobID, model.EmbeddingCounters{FilesEmbedded: 1, EmbeddingsStored: stored}); err != nil {
		ctxlog.FromContext(ctx).Errorw("failed to update embedding counters", "file", f.Name, "error", err.Error())
	}
	_ = s.ledger.UpdateDocStatus(ctx, docID, model.DocOK, msgEmbedded)
	r.tally.add(func(t *IngestionResult) {
		t.FilesEmbedded++
		t.EmbeddingsStored += stored
	})
	ctxlog.FromContext(ctx).Infow("vectors upserted", "file", f.Name, "count", stored, "index", s.index.Name())
}

// vectorize 返回写入的向量数。
func (s *IngestionService) vectorize(ctx context.Context, r *run, f store.BlobFile, res *model.DocumentResult) (int, error) {
	if s.embedder == nil {
		return 0, llm.ErrProviderNotConfigured
	}

	meta := s.extractor.Extract(ctx, documentText(res), r.req.MetadataKeys)

	texts := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	ident := meta[model.MetaDocumentID]
	if ident == "" {
		ident = res.DocID
	}
	prefix := vectorIDPrefixFor(ident)

	records := make([]store.VectorRecord, len(res.Chunks))
	for i, c := range res.Chunks {
		md := make(map[string]any, len(meta)+9)
		for k, v := range meta {
			md[k] = v
		}
		md[model.MetaDatasetName] = r.req.DatasetName
		md[model.MetaSourceFile] = f.Name
		md[model.MetaText] = c.Text
		md[model.MetaChunkIndex] = c.ChunkIndex
		md[model.MetaPageIndex] = c.PageIndex
		md[model.MetaSourceURL] = c.SourceURL
		md[model.MetaDocumentID] = ident
		md[model.MetaDocID] = res.DocID
		md[model.MetaLanguage] = c.Language

		records[i] = store.VectorRecord{
			ID:        fmt.Sprintf("%s_p%d_c%d", prefix, c.PageIndex, c.ChunkIndex),
			Vector:    vectors[i],
			Metadata:  md,
			Namespace: r.req.DatasetName,
		}
	}

	if err := s.index.Upsert(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// embedAll 分批并发生成向量，结果顺序与输入一致。
func (s *IngestionService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.EmbedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := s.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// noText 记录没有可抽取文本的文档。
func (s *IngestionService) noText(ctx context.Context, r *run, docID string, f store.BlobFile, counts model.DocCounts) {
	ctxlog.FromContext(ctx).Warnw("no extractable text found", "file", f.Name)
	_ = s.ledger.UpdateDocStatus(ctx, docID, model.DocFailed, msgNoText)
	_ = s.ledger.UpdateDocCounts(ctx, docID, counts)
	_ = s.ledger.UpdateJobCounters(ctx, r.jobID, model.JobCounters{
		FilesFailed:         1,
		PagesProcessed:      counts.PagesTotal,
		PagesWithoutText:    counts.PagesWithoutText,
		LangUndetectedCount: counts.LangUndetectedCount,
	})
	r.tally.add(func(t *IngestionResult) { t.FilesFailed++ })
	s.metrics.RecordDocument(0, errors.ErrExtraction)
}

// fail 记录文档失败；Force 模式下终止本次运行。
func (s *IngestionService) fail(ctx context.Context, r *run, docID string, f store.BlobFile, err error) {
	ctxlog.FromContext(ctx).Errorw("error processing file", "file", f.Name, "error", err.Error())
	if docID != "" {
		_ = s.ledger.UpdateDocStatus(ctx, docID, model.DocFailed, err.Error())
	}
	_ = s.ledger.UpdateJobCounters(ctx, r.jobID, model.JobCounters{FilesFailed: 1})
	r.tally.add(func(t *IngestionResult) { t.FilesFailed++ })
	s.metrics.RecordDocument(0, err)
	if r.req.Force {
		r.cancel(fmt.Errorf("process %s: %w", f.Name, err))
	}
}

func (s *IngestionService) finish(ctx context.Context, jobID string, status model.JobStatus) {
	if err := s.ledger.FinishJob(context.WithoutCancel(ctx), jobID, status); err != nil {
		ctxlog.FromContext(ctx).Errorw("failed to finish job", "job_id", jobID, "status", status, "error", err.Error())
	}
}

// finalStatus 没有失败为 completed；有失败但有文档处理或向量化成功为 completed_with_errors。
func finalStatus(r IngestionResult) model.JobStatus {
	switch {
	case r.FilesFailed == 0:
		return model.JobCompleted
	case r.FilesProcessed > 0 || r.FilesEmbedded > 0:
		return model.JobCompletedWithErrors
	default:
		return model.JobFailed
	}
}

// outputLocation 返回 OCR JSON 相对数据集输出目录的子目录、文件名与完整路径。
// 输出目录镜像输入目录结构。
func outputLocation(dataset string, f store.BlobFile) (dir, name, full string) {
	rel := f.Path
	if rel == "" {
		rel = f.Name
	}
	rel = strings.TrimPrefix(rel, dataset+"/")

	dir = path.Dir(rel)
	if dir == "." {
		dir = ""
	}
	name = strings.TrimSuffix(f.Name, path.Ext(f.Name)) + ".json"
	full = path.Join(dataset, dir, name)
	return dir, name, full
}

// withoutOutput 排除位于输出根目录下的文件，输出目录建在输入目录之内。
func withoutOutput(files []store.BlobFile, outputRoot string) []store.BlobFile {
	prefix := outputRoot + "/"
	kept := files[:0]
	for _, f := range files {
		if strings.HasPrefix(f.Path, prefix) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// documentText 以空行连接各块文本，供元数据抽取使用。
func documentText(res *model.DocumentResult) string {
	parts := make([]string, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// vectorIDPrefixFor 将文档标识中的空格与斜杠替换为下划线，并限制长度。
func vectorIDPrefixFor(ident string) string {
	s := strings.NewReplacer(" ", "_", "/", "_").Replace(ident)
	return textutil.TruncateRunes(s, vectorIDPrefix)
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
