// Package textutil 提供文档摄取与检索共用的文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kart-io/docqa/pkg/utils/json"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis 截断文本时追加的省略号（单个字符）。
const Ellipsis = "…"

var (
	spaceRun      = regexp.MustCompile(`[ \t]+`)
	spaceAfterNL  = regexp.MustCompile(`\n[ \t]+`)
	spaceBeforeNL = regexp.MustCompile(`[ \t]+\n`)
	newlineRun    = regexp.MustCompile(`\n{3,}`)
	jsonObject    = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Normalize 规范化抽取出的原始文本。
// 依次执行：NFC 组合、合并空格与制表符、去除换行两侧的空白、
// 将三个及以上的连续换行压缩为两个、去除首尾空白。
// 结果满足幂等性：Normalize(Normalize(s)) == Normalize(s)。
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceAfterNL.ReplaceAllString(s, "\n")
	s = spaceBeforeNL.ReplaceAllString(s, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// RuneLen 返回字符串的 Unicode 字符数。
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateRunes 截断字符串到指定的最大 Unicode 字符数。
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// TruncateWithEllipsis 超过 maxLen 个字符时截断并追加省略号。
// 省略号不计入 maxLen。
func TruncateWithEllipsis(s string, maxLen int) (string, bool) {
	if utf8.RuneCountInString(s) <= maxLen {
		return s, false
	}
	return TruncateRunes(s, maxLen) + Ellipsis, true
}

// Preview 返回用于日志输出的单行文本预览。
func Preview(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	out, _ := TruncateWithEllipsis(s, maxLen)
	return out
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify 将任意文本转换为小写 ASCII slug。
// 变音符号会被去除，其余非字母数字字符折叠为单个 "-"。
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// HashBytes 计算字节内容的 SHA-256 十六进制摘要。
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString 计算字符串的 SHA-256 十六进制摘要。
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，长度不一致或零向量时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RoundTo 将浮点数四舍五入到指定的小数位数。
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ParseJSONObject 从 LLM 输出中提取并解析第一个 JSON 对象。
func ParseJSONObject(s string) (map[string]any, error) {
	match := jsonObject.FindString(s)
	if match == "" {
		return nil, fmt.Errorf("未找到 JSON 对象")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(match), &result); err != nil {
		return nil, err
	}
	return result, nil
}
