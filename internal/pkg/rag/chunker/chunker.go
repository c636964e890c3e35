// Package chunker 实现按分隔符优先级递归切分文本的分块器。
//
// 切分时优先选用段落、换行、句末标点、空格等较粗的边界；
// 只有当某段连续文本中不包含任何分隔符且超过目标大小时，才按字符硬切。
// 所有长度均以 Unicode 字符计。
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/logger"
)

// 默认参数。
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// DefaultSeparators 从粗到细的分隔符优先级。
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Stats 记录一次切分的统计信息。
type Stats struct {
	// Chunks 输出的块数。
	Chunks int
	// CharCuts 因无可用分隔符而按字符硬切的文本段数。
	CharCuts int
	// Oversized 合并时超过目标大小的片段数。
	Oversized int
}

// Splitter 递归分隔符分块器，创建后只读，可安全并发使用。
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New 创建分块器。overlap 不能大于 size。
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 {
		return nil, errors.New("chunk overlap must not be negative")
	}
	if overlap > size {
		return nil, fmt.Errorf("chunk overlap (%d) is larger than chunk size (%d)", overlap, size)
	}

	seps := make([]string, 0, len(DefaultSeparators)+1)
	seps = append(seps, DefaultSeparators...)
	// 空分隔符表示按字符切分，作为最后的兜底
	seps = append(seps, "")

	return &Splitter{size: size, overlap: overlap, separators: seps}, nil
}

// Size 返回目标块大小。
func (s *Splitter) Size() int { return s.size }

// Overlap 返回相邻块的重叠字符数。
func (s *Splitter) Overlap() int { return s.overlap }

// Split 切分文本，返回按原文顺序排列的非空块。
func (s *Splitter) Split(text string) []string {
	chunks, _ := s.SplitWithStats(text)
	return chunks
}

// SplitWithStats 切分文本并返回统计信息。
//
// 正常情况下每个块不超过目标大小；按字符硬切的段会记入 Stats.CharCuts，
// 便于排查包含超长无分隔内容（如 base64、长 URL）的文档。
func (s *Splitter) SplitWithStats(text string) ([]string, Stats) {
	var st Stats
	if strings.TrimSpace(text) == "" {
		return nil, st
	}

	chunks := s.split(text, s.separators, &st)
	st.Chunks = len(chunks)
	if st.CharCuts > 0 || st.Oversized > 0 {
		logger.Debugw("chunker fell back to character cuts",
			"char_cuts", st.CharCuts,
			"oversized", st.Oversized,
			"chunk_size", s.size,
		)
	}
	return chunks, st
}

func (s *Splitter) split(text string, separators []string, st *Stats) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	if separator == "" {
		st.CharCuts++
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if utf8.RuneCountInString(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, st)...)
			good = nil
		}
		if len(rest) == 0 {
			st.Oversized++
			if t := strings.TrimSpace(piece); t != "" {
				out = append(out, t)
			}
			continue
		}
		out = append(out, s.split(piece, rest, st)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, st)...)
	}
	return out
}

// splitKeepSeparator 按分隔符切分，分隔符保留在前一段的末尾，句末标点随所在句子。
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += separator
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// merge 将小片段合并为不超过目标大小的块，并在相邻块之间保留重叠。
func (s *Splitter) merge(pieces []string, st *Stats) []string {
	var (
		out     []string
		current []string
		lengths []int
		total   int
	)

	flush := func() {
		if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
			out = append(out, doc)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > s.size {
			if total > s.size {
				st.Oversized++
			}
			if len(current) > 0 {
				flush()
				for total > s.overlap || (total+n > s.size && total > 0) {
					total -= lengths[0]
					current = current[1:]
					lengths = lengths[1:]
				}
			}
		}
		current = append(current, p)
		lengths = append(lengths, n)
		total += n
	}
	flush()
	return out
}
