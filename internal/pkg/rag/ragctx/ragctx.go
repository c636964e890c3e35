// Package ragctx 将检索结果组装为有长度上限的提示词上下文。
//
// 所有长度均以 Unicode 字符计。
package ragctx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
)

// 默认上限。
const (
	DefaultMaxContextChars = 6000
	DefaultMaxSnippetChars = 1200
)

// MissingOrder 缺少页码或块序号时使用的排序值，排在所有正常记录之后。
const MissingOrder = 1_000_000

// SummarySeparator 摘要上下文片段之间的分隔行。
const SummarySeparator = "\n---\n"

// UnknownSource 缺少来源文件名时的占位标签。
const UnknownSource = "unknown_file"

// Builder 上下文构建器。
type Builder struct {
	MaxContextChars int
	MaxSnippetChars int
}

// NewBuilder 创建构建器，非正数参数使用默认值。
func NewBuilder(maxContext, maxSnippet int) *Builder {
	if maxContext <= 0 {
		maxContext = DefaultMaxContextChars
	}
	if maxSnippet <= 0 {
		maxSnippet = DefaultMaxSnippetChars
	}
	return &Builder{MaxContextChars: maxContext, MaxSnippetChars: maxSnippet}
}

// BuildQnAContext 按排名顺序生成带 [CIT:n] 标记的问答上下文与引用表。
//
// 每段文本截断到 MaxSnippetChars；加入下一段会超过 MaxContextChars 时停止。
// 空文本的块被跳过且不占用引用编号。
func (b *Builder) BuildQnAContext(chunks []model.RetrievedChunk) (string, []model.Citation) {
	if len(chunks) == 0 {
		return "", nil
	}

	var (
		blocks    []string
		citations []model.Citation
		used      int
	)

	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		text, _ = textutil.TruncateWithEllipsis(text, b.MaxSnippetChars)

		label := len(citations) + 1
		source := c.MetaString(model.MetaSourceFile)
		if source == "" {
			source = UnknownSource
		}
		block := fmt.Sprintf("[CIT:%d] %s\n%s\n", label, source, text)

		n := textutil.RuneLen(block)
		if used+n > b.MaxContextChars {
			break
		}

		blocks = append(blocks, block)
		citations = append(citations, citationFor(label, c))
		used += n
	}

	return strings.Join(blocks, "\n"), citations
}

func citationFor(label int, c model.RetrievedChunk) model.Citation {
	cit := model.Citation{
		Label:        label,
		ID:           c.ID,
		Score:        textutil.RoundTo(c.Score, 4),
		SourceFile:   c.MetaString(model.MetaSourceFile),
		SourceURL:    c.MetaString(model.MetaSourceURL),
		Title:        c.MetaString(model.MetaTitle),
		CourtName:    c.MetaString(model.MetaCourtName),
		CaseNumber:   c.MetaString(model.MetaCaseNumber),
		DecisionDate: c.MetaString(model.MetaDecisionDate),
	}
	if v, ok := c.MetaInt(model.MetaPageIndex); ok {
		cit.PageIndex = &v
	}
	if v, ok := c.MetaInt(model.MetaChunkIndex); ok {
		cit.ChunkIndex = &v
	}
	return cit
}

// AssembleDocumentContext 按给定顺序以空行连接所有非空块文本。
//
// 超过 maxChars 时截断为恰好不超过 maxChars 个字符（含末尾省略号），
// 并返回 truncated=true。
func AssembleDocumentContext(chunks []model.RetrievedChunk, maxChars int) (string, bool) {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if text := strings.TrimSpace(c.Text); text != "" {
			parts = append(parts, text)
		}
	}

	joined := strings.Join(parts, "\n\n")
	if maxChars <= 0 || textutil.RuneLen(joined) <= maxChars {
		return joined, false
	}

	cut := strings.TrimRight(textutil.TruncateRunes(joined, maxChars-1), " \t\r\n")
	return cut + textutil.Ellipsis, true
}

// BuildSummaryContext 生成摘要回退模式使用的精简上下文。
// 片段之间以 SummarySeparator 分隔，以区别于整篇文档上下文。
func (b *Builder) BuildSummaryContext(chunks []model.RetrievedChunk) string {
	var (
		segments []string
		used     int
	)

	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		snippet, _ := textutil.TruncateWithEllipsis(text, b.MaxSnippetChars)

		n := textutil.RuneLen(snippet)
		if used+n > b.MaxContextChars {
			break
		}
		segments = append(segments, snippet)
		used += n
	}

	return strings.Join(segments, SummarySeparator)
}

// DocumentOrder 返回整篇文档重建时的排序键 (page_index, chunk_index)。
func DocumentOrder(c model.RetrievedChunk) (int, int) {
	page, ok := c.MetaInt(model.MetaPageIndex)
	if !ok {
		page = MissingOrder
	}
	idx, ok := c.MetaInt(model.MetaChunkIndex)
	if !ok {
		idx = MissingOrder
	}
	return page, idx
}

// SortByDocumentOrder 按 (page_index, chunk_index) 升序稳定排序，原切片被修改。
func SortByDocumentOrder(chunks []model.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		pi, ci := DocumentOrder(chunks[i])
		pj, cj := DocumentOrder(chunks[j])
		if pi != pj {
			return pi < pj
		}
		return ci < cj
	})
}
