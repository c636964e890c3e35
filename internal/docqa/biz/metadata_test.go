package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

func TestMetadataExtract(t *testing.T) {
	keys := []string{"document_id", "title", "decision_date"}

	tests := []struct {
		name  string
		reply string
		err   error
		want  map[string]string
	}{
		{
			name:  "纯 JSON",
			reply: `{"document_id":"CA-12/2020","title":"A v B","decision_date":"2021-04-01"}`,
			want:  map[string]string{"document_id": "CA-12/2020", "title": "A v B", "decision_date": "2021-04-01"},
		},
		{
			name:  "带代码块与数组值",
			reply: "```json\n{\"document_id\": 42, \"title\": [\"A\", \"B\"], \"decision_date\": null}\n```",
			want:  map[string]string{"document_id": "42", "title": "A, B", "decision_date": ""},
		},
		{
			name:  "非 JSON 回复",
			reply: "I cannot help with that.",
			want:  map[string]string{"document_id": "", "title": "", "decision_date": ""},
		},
		{
			name: "调用失败",
			err:  errors.New("rate limited"),
			want: map[string]string{"document_id": "", "title": "", "decision_date": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubChat{reply: tt.reply, err: tt.err}
			e := NewMetadataExtractor(provider, keys)

			got := e.Extract(context.Background(), "IN THE HIGH COURT ...", nil)
			assert.Equal(t, tt.want, got)

			require.Len(t, provider.messages, 1)
			msgs := provider.messages[0]
			require.Len(t, msgs, 2)
			assert.Equal(t, llm.RoleSystem, msgs[0].Role)
			assert.Contains(t, msgs[1].Content, `"decision_date": "YYYY-MM-DD"`)
			assert.Contains(t, msgs[1].Content, "IN THE HIGH COURT ...")
		})
	}
}

func TestMetadataExtractWithoutProvider(t *testing.T) {
	e := NewMetadataExtractor(nil, nil)
	got := e.Extract(context.Background(), "text", nil)
	assert.Len(t, got, len(DefaultMetadataKeys))
	for _, k := range DefaultMetadataKeys {
		assert.Equal(t, "", got[k])
	}
}

func TestMetadataPromptTruncated(t *testing.T) {
	provider := &stubChat{reply: "{}"}
	e := NewMetadataExtractor(provider, []string{"title"})

	long := make([]rune, metadataPromptChars+500)
	for i := range long {
		long[i] = 'x'
	}
	e.Extract(context.Background(), string(long), nil)

	require.Len(t, provider.messages, 1)
	assert.NotContains(t, provider.messages[0][1].Content, string(long[:metadataPromptChars+1]))
	assert.Contains(t, provider.messages[0][1].Content, string(long[:metadataPromptChars]))
}

func TestSchemaJSON(t *testing.T) {
	got := schemaJSON([]string{"title", "decision_date"})
	assert.Equal(t, "{\n  \"title\": \"string\",\n  \"decision_date\": \"YYYY-MM-DD\"\n}", got)
}

func TestMetadataString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "空值", in: nil, want: ""},
		{name: "字符串", in: "Supreme Court", want: "Supreme Court"},
		{name: "整数浮点", in: float64(2021), want: "2021"},
		{name: "小数", in: 1.5, want: "1.5"},
		{name: "布尔", in: true, want: "true"},
		{name: "数组跳过空项", in: []any{"X", nil, "Y"}, want: "X, Y"},
		{name: "对象重新编码", in: map[string]any{"a": "b"}, want: `{"a":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, metadataString(tt.in))
		})
	}
}

func TestNormalizeMetadataTruncates(t *testing.T) {
	long := make([]rune, metadataValueChars+10)
	for i := range long {
		long[i] = 'y'
	}
	out := normalizeMetadata(map[string]any{"title": string(long)})
	assert.Len(t, []rune(out["title"]), metadataValueChars)
}
