// Package docproc 将文本抽取、语言识别与分块组合为单文档处理流程。
package docproc

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/chunker"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/internal/pkg/rag/langdetect"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/logger"
)

// DocIDStrategy 默认 doc_id 的生成方式。
type DocIDStrategy string

const (
	// DocIDByDate doc:<slug>@YYYY-MM-DD（UTC），同一天内重复处理得到相同 ID。
	DocIDByDate DocIDStrategy = "date"
	// DocIDByHash doc:<slug>@<内容 SHA-256 前 12 位>，与处理日期无关。
	DocIDByHash DocIDStrategy = "hash"
)

// Extractor 文档文本抽取能力。
type Extractor interface {
	Extract(data []byte, fileName, mimeType string) (*docutil.Extraction, error)
}

// LanguageDetector 语言识别能力。
type LanguageDetector interface {
	Detect(text string) string
}

// ProcessOptions 单次处理的可选参数。
type ProcessOptions struct {
	// DocID 为空时按 DocIDStrategy 生成。
	DocID string
	// MimeType 扩展名无法识别格式时使用。
	MimeType string
	// SourceURL 写入每个块的来源链接。
	SourceURL string
	// Splitter 覆盖默认的分块参数。
	Splitter *chunker.Splitter
}

// Processor 文档处理器，可安全并发使用。
type Processor struct {
	extractor Extractor
	splitter  *chunker.Splitter
	detector  LanguageDetector
	workers   *pool.Pool
	strategy  DocIDStrategy
	now       func() time.Time
}

// Option 配置 Processor。
type Option func(*Processor)

// WithPool 在给定的 worker 池中执行抽取与分块。
func WithPool(p *pool.Pool) Option {
	return func(pr *Processor) {
		pr.workers = p
	}
}

// WithDocIDStrategy 设置默认 doc_id 的生成方式。
func WithDocIDStrategy(s DocIDStrategy) Option {
	return func(pr *Processor) {
		if s != "" {
			pr.strategy = s
		}
	}
}

// WithClock 替换当前时间来源。
func WithClock(now func() time.Time) Option {
	return func(pr *Processor) {
		pr.now = now
	}
}

// New 创建文档处理器。
func New(extractor Extractor, splitter *chunker.Splitter, detector LanguageDetector, opts ...Option) *Processor {
	p := &Processor{
		extractor: extractor,
		splitter:  splitter,
		detector:  detector,
		strategy:  DocIDByDate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 处理单个文档：抽取文本、识别语言并逐页分块。
//
// 文本为空时返回零块结果（language 为 und），由调用方决定是否视为失败。
// 格式不支持或解析失败时返回 docutil 的错误。
func (p *Processor) Process(ctx context.Context, data []byte, fileName string, opts ProcessOptions) (*model.DocumentResult, error) {
	if p.workers == nil {
		return p.process(data, fileName, opts)
	}

	var (
		result *model.DocumentResult
		err    error
	)
	if perr := p.workers.Do(ctx, func() error {
		result, err = p.process(data, fileName, opts)
		return nil
	}); perr != nil {
		return nil, perr
	}
	return result, err
}

func (p *Processor) process(data []byte, fileName string, opts ProcessOptions) (*model.DocumentResult, error) {
	docID := opts.DocID
	if docID == "" {
		docID = p.DocID(fileName, data)
	}

	ext, err := p.extractor.Extract(data, fileName, opts.MimeType)
	if err != nil {
		return nil, err
	}

	result := &model.DocumentResult{
		DocID:            docID,
		FileName:         fileName,
		Language:         langdetect.Und,
		TotalPageCount:   ext.TotalPages,
		PagesWithoutText: ext.PagesWithoutText,
		Chunks:           []model.Chunk{},
	}

	if strings.TrimSpace(ext.Text) == "" {
		logger.Warnw("document has no extractable text", "file", fileName, "doc_id", docID)
		return result, nil
	}

	result.Language = p.detector.Detect(ext.Text)
	result.LangUndetected = result.Language == langdetect.Und
	if result.LangUndetected {
		logger.Warnw("could not detect language", "file", fileName, "doc_id", docID)
	}

	splitter := p.splitter
	if opts.Splitter != nil {
		splitter = opts.Splitter
	}

	for pageIndex, pageText := range ext.Pages {
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pieces, stats := splitter.SplitWithStats(pageText)
		for i, text := range pieces {
			result.Chunks = append(result.Chunks, model.Chunk{
				DocID:          docID,
				FileName:       fileName,
				Language:       result.Language,
				TotalPageCount: ext.TotalPages,
				PageIndex:      pageIndex,
				ChunkIndex:     i,
				Text:           text,
				SourceURL:      opts.SourceURL,
			})
		}
		logger.Debugw("chunked page",
			"file", fileName,
			"page", pageIndex+1,
			"chunks", stats.Chunks,
			"char_cuts", stats.CharCuts,
		)
	}
	result.ChunksEmitted = len(result.Chunks)

	logger.Infow("processed document",
		"file", fileName,
		"doc_id", docID,
		"language", result.Language,
		"pages", result.TotalPageCount,
		"pages_without_text", result.PagesWithoutText,
		"chunks", result.ChunksEmitted,
	)
	return result, nil
}

// DocID 按当前策略为文件生成默认 doc_id。
func (p *Processor) DocID(fileName string, data []byte) string {
	base := filepath.Base(fileName)
	slug := textutil.Slugify(strings.TrimSuffix(base, filepath.Ext(base)))

	if p.strategy == DocIDByHash {
		return "doc:" + slug + "@" + textutil.HashBytes(data)[:12]
	}
	return "doc:" + slug + "@" + p.now().UTC().Format("2006-01-02")
}
