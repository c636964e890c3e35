// Package docutil 提供按格式分派的文档文本抽取。
//
// 支持 PDF（逐页抽取，保留页序）、DOC/DOCX 与 TXT。格式先按扩展名判定，
// 其次按调用方提供的 MIME 类型判定；两者均缺失时才对内容做类型嗅探。
package docutil

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/logger"
	"golang.org/x/text/encoding/charmap"
)

// Format 文档格式。
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOC  Format = "doc"
	FormatDOCX Format = "docx"
	FormatText Format = "txt"
)

// 常用 MIME 类型。
const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

// ErrUnsupportedFormat 表示无法识别或不支持的文档格式。
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ExtractionError 包装解析或解码失败的底层错误。
type ExtractionError struct {
	Format   Format
	FileName string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s text from %q: %v", e.Format, e.FileName, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extraction 是一次文本抽取的结果。
type Extraction struct {
	// Format 实际使用的格式。
	Format Format
	// Text 所有非空页面以空行连接后的全文。
	Text string
	// Pages 每页规范化后的文本，无文本的页面为空字符串。
	// 非分页格式只有一页。
	Pages []string
	// TotalPages 总页数，包含无文本页面。
	TotalPages int
	// PagesWithoutText 规范化后为空的页面数。
	PagesWithoutText int
}

// PDFDocument 抽象 PDF 的逐页文本访问，页码从 0 开始。
type PDFDocument interface {
	NumPages() int
	// BlockText 按阅读顺序返回页面的文本块，块之间以换行分隔。
	BlockText(page int) (string, error)
	// PlainText 返回页面的纯文本。
	PlainText(page int) (string, error)
}

// PDFOpener 从字节内容打开 PDF 文档。
type PDFOpener func(data []byte) (PDFDocument, error)

// WordConverter 将 DOC/DOCX 内容转换为文本，段落之间以换行分隔。
type WordConverter func(data []byte, format Format) (string, error)

// Extractor 文档文本抽取器，可安全并发使用。
type Extractor struct {
	openPDF     PDFOpener
	convertWord WordConverter
}

// Option 配置 Extractor。
type Option func(*Extractor)

// WithPDFOpener 替换 PDF 解析实现。
func WithPDFOpener(o PDFOpener) Option {
	return func(e *Extractor) {
		e.openPDF = o
	}
}

// WithWordConverter 替换 DOC/DOCX 转换实现。
func WithWordConverter(c WordConverter) Option {
	return func(e *Extractor) {
		e.convertWord = c
	}
}

// New 创建抽取器，默认使用 ledongthuc/pdf 与 docconv。
func New(opts ...Option) *Extractor {
	e := &Extractor{
		openPDF:     OpenPDF,
		convertWord: ConvertWord,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectFormat 先按扩展名、再按 MIME 类型判定格式。
// 两者都为空时对内容进行嗅探。
func DetectFormat(data []byte, fileName, mimeType string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".doc":
		return FormatDOC, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt":
		return FormatText, nil
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case MimePDF:
		return FormatPDF, nil
	case MimeDOC:
		return FormatDOC, nil
	case MimeDOCX:
		return FormatDOCX, nil
	case MimeText:
		return FormatText, nil
	}

	if ext == "" && mimeType == "" && len(data) > 0 {
		detected := mimetype.Detect(data)
		switch {
		case detected.Is(MimePDF):
			return FormatPDF, nil
		case detected.Is(MimeDOCX):
			return FormatDOCX, nil
		case detected.Is(MimeDOC):
			return FormatDOC, nil
		case detected.Is(MimeText):
			return FormatText, nil
		}
	}

	return "", fmt.Errorf("%w: %s (ext: %q, mime: %q)", ErrUnsupportedFormat, fileName, ext, mimeType)
}

// Extract 抽取文档文本。
// 不支持的格式返回包装了 ErrUnsupportedFormat 的错误，解析失败返回 *ExtractionError。
func (e *Extractor) Extract(data []byte, fileName, mimeType string) (result *Extraction, err error) {
	format, err := DetectFormat(data, fileName, mimeType)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("document parser panicked", "file", fileName, "format", format, "panic", r)
			result = nil
			err = &ExtractionError{Format: format, FileName: fileName, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	switch format {
	case FormatPDF:
		return e.extractPDF(data, fileName)
	case FormatDOC, FormatDOCX:
		return e.extractWord(data, fileName, format)
	default:
		return extractText(data, fileName), nil
	}
}

func (e *Extractor) extractPDF(data []byte, fileName string) (*Extraction, error) {
	doc, err := e.openPDF(data)
	if err != nil {
		return nil, &ExtractionError{Format: FormatPDF, FileName: fileName, Err: err}
	}

	total := doc.NumPages()
	logger.Infow("processing pdf", "file", fileName, "pages", total)

	out := &Extraction{
		Format:     FormatPDF,
		Pages:      make([]string, total),
		TotalPages: total,
	}
	nonEmpty := make([]string, 0, total)

	for i := 0; i < total; i++ {
		raw, err := pageText(doc, i)
		if err != nil {
			return nil, &ExtractionError{Format: FormatPDF, FileName: fileName, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}

		text := textutil.Normalize(raw)
		if text == "" {
			out.PagesWithoutText++
			logger.Warnw("page has no extractable text (image-only page)", "file", fileName, "page", i+1)
			continue
		}
		out.Pages[i] = text
		nonEmpty = append(nonEmpty, text)
	}

	out.Text = strings.Join(nonEmpty, "\n\n")
	logger.Infow("extracted text from pdf",
		"file", fileName,
		"pages", total,
		"pages_without_text", out.PagesWithoutText,
	)
	return out, nil
}

// pageText 优先使用文本块抽取，块为空或失败时回退到纯文本抽取。
func pageText(doc PDFDocument, page int) (string, error) {
	blocks, err := doc.BlockText(page)
	if err == nil && strings.TrimSpace(blocks) != "" {
		return blocks, nil
	}
	return doc.PlainText(page)
}

func (e *Extractor) extractWord(data []byte, fileName string, format Format) (*Extraction, error) {
	raw, err := e.convertWord(data, format)
	if err != nil {
		return nil, &ExtractionError{Format: format, FileName: fileName, Err: err}
	}

	var paragraphs []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			paragraphs = append(paragraphs, line)
		}
	}

	text := textutil.Normalize(strings.Join(paragraphs, "\n\n"))
	logger.Infow("extracted text from word document", "file", fileName, "format", format, "paragraphs", len(paragraphs))
	return flat(format, text), nil
}

func extractText(data []byte, fileName string) *Extraction {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var raw string
	if utf8.Valid(data) {
		raw = string(data)
	} else {
		// ISO-8859-1 可以解码任意字节序列
		decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
		raw = string(decoded)
		logger.Debugw("text file is not valid utf-8, decoded as latin-1", "file", fileName)
	}

	text := textutil.Normalize(raw)
	logger.Infow("extracted text from txt", "file", fileName, "chars", textutil.RuneLen(text))
	return flat(FormatText, text)
}

func flat(format Format, text string) *Extraction {
	return &Extraction{
		Format:     format,
		Text:       text,
		Pages:      []string{text},
		TotalPages: 1,
	}
}

// ConvertWord 使用 docconv 转换 DOC/DOCX 文档。
// DOC 格式依赖系统中的 wvText 工具。
func ConvertWord(data []byte, format Format) (string, error) {
	r := bytes.NewReader(data)
	var (
		text string
		err  error
	)
	if format == FormatDOC {
		text, _, err = docconv.ConvertDoc(r)
	} else {
		text, _, err = docconv.ConvertDocx(r)
	}
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	return text, nil
}
