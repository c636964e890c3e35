package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// 元数据抽取限制。
const (
	metadataPromptChars = 15000
	metadataValueChars  = 1000
)

// DefaultMetadataKeys 默认的裁判文书元数据字段。
var DefaultMetadataKeys = []string{
	"document_id",
	"title",
	"court_name",
	"case_number",
	"case_type",
	"decision_date",
	"coram",
	"petitioner",
	"respondent",
	"key_issues",
}

// MetadataExtractor 用 LLM 从文档全文中抽取结构化元数据。
type MetadataExtractor struct {
	provider llm.ChatProvider
	keys     []string
}

// NewMetadataExtractor 创建抽取器。keys 为空时使用 DefaultMetadataKeys。
func NewMetadataExtractor(provider llm.ChatProvider, keys []string) *MetadataExtractor {
	if len(keys) == 0 {
		keys = DefaultMetadataKeys
	}
	return &MetadataExtractor{provider: provider, keys: keys}
}

// Extract 抽取元数据。keys 为空时使用构造时的字段。
// 任何失败都返回全部字段为空字符串的结果。
func (e *MetadataExtractor) Extract(ctx context.Context, text string, keys []string) map[string]string {
	if len(keys) == 0 {
		keys = e.keys
	}
	if e.provider == nil {
		return emptyMetadata(keys)
	}

	prompt := render(metadataPrompt, map[string]string{
		"schema": schemaJSON(keys),
		"text":   textutil.TruncateRunes(text, metadataPromptChars),
	})

	reply, err := e.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: metadataSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		logger.Errorw("metadata extraction failed", "error", err.Error())
		return emptyMetadata(keys)
	}

	raw, err := textutil.ParseJSONObject(reply)
	if err != nil {
		logger.Errorw("metadata response is not a JSON object", "error", err.Error(), "preview", textutil.Preview(reply, 200))
		return emptyMetadata(keys)
	}

	out := normalizeMetadata(raw)
	logger.Infow("metadata extracted", "fields", len(out))
	return out
}

func emptyMetadata(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = ""
	}
	return out
}

// schemaJSON 按字段顺序生成示例 schema。
func schemaJSON(keys []string) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, k := range keys {
		typ := "string"
		if strings.HasSuffix(k, "_date") {
			typ = "YYYY-MM-DD"
		}
		name, _ := json.Marshal(k)
		fmt.Fprintf(&sb, "  %s: %q", name, typ)
		if i < len(keys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// normalizeMetadata 把任意 JSON 值转换为字符串：数组以 ", " 连接，对象重新编码，
// null 为空字符串，过长的值截断。
func normalizeMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = textutil.TruncateRunes(metadataString(v), metadataValueChars)
	}
	return out
}

func metadataString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := metadataString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
