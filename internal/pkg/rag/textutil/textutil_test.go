package textutil_test

import (
	"testing"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "空字符串",
			input:    "",
			expected: "",
		},
		{
			name:     "只有空白",
			input:    " \t\n\n ",
			expected: "",
		},
		{
			name:     "合并空格和制表符",
			input:    "hello \t  world",
			expected: "hello world",
		},
		{
			name:     "去除换行两侧空白",
			input:    "line one   \n   line two",
			expected: "line one\nline two",
		},
		{
			name:     "保留段落分隔",
			input:    "para one\n\npara two",
			expected: "para one\n\npara two",
		},
		{
			name:     "压缩多余空行",
			input:    "para one\n\n\n\n\npara two",
			expected: "para one\n\npara two",
		},
		{
			name:     "空白行被压缩",
			input:    "a\n \n \n \nb",
			expected: "a\n\nb",
		},
		{
			name:     "NFC 组合",
			input:    "Cafe\u0301",
			expected: "Caf\u00e9",
		},
		{
			name:     "首尾空白",
			input:    "\n\n  text  \n",
			expected: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"  lots   of\t\tspace \n\n\n\n next  ",
		"\n \n\t\n text \r\n with carriage \n\n\n",
		"A\u030a ring and e\u0301 accents\n\n\n\n\n",
		"tab\tthen newline \t\n\t indented",
		"\u00a0leading nbsp and trailing\u00a0",
	}

	for _, in := range inputs {
		once := textutil.Normalize(in)
		assert.Equal(t, once, textutil.Normalize(once), "input %q", in)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", textutil.TruncateRunes("héllo", 4))
	assert.Equal(t, "héllo", textutil.TruncateRunes("héllo", 10))
	assert.Equal(t, "", textutil.TruncateRunes("héllo", 0))
}

func TestTruncateWithEllipsis(t *testing.T) {
	out, truncated := textutil.TruncateWithEllipsis("abcdef", 3)
	assert.True(t, truncated)
	assert.Equal(t, "abc…", out)

	out, truncated = textutil.TruncateWithEllipsis("abc", 3)
	assert.False(t, truncated)
	assert.Equal(t, "abc", out)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "普通文件名", input: "Annual Report 2024", expected: "annual-report-2024"},
		{name: "变音符号", input: "Résumé Über", expected: "resume-uber"},
		{name: "符号折叠", input: "  case__no.12 / final!! ", expected: "case-no-12-final"},
		{name: "全部为符号", input: "***", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.Slugify(tt.input))
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, textutil.CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, textutil.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, textutil.CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, textutil.CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 0.1235, textutil.RoundTo(0.123456, 4))
	assert.Equal(t, 0.9, textutil.RoundTo(0.9, 4))
}

func TestParseJSONObject(t *testing.T) {
	obj, err := textutil.ParseJSONObject("```json\n{\"title\": \"State v. Doe\", \"year\": 2020}\n```")
	require.NoError(t, err)
	assert.Equal(t, "State v. Doe", obj["title"])

	_, err = textutil.ParseJSONObject("no json here")
	assert.Error(t, err)
}
