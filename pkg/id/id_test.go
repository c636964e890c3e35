package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenerator(t *testing.T) {
	gen := NewULIDGenerator()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.Generate()
		assert.Len(t, ids[i], 26)
		assert.True(t, IsValidULID(ids[i]))
	}

	assert.True(t, sort.StringsAreSorted(ids), "同一生成器生成的 ID 应单调递增")

	seen := make(map[string]struct{}, len(ids))
	for _, v := range ids {
		_, dup := seen[v]
		assert.False(t, dup, "duplicate id %s", v)
		seen[v] = struct{}{}
	}
}

func TestNewULID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	v := NewULID()

	ts, err := Time(v)
	require.NoError(t, err)
	assert.True(t, ts.After(before))
}

func TestIsValidULID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "合法", input: "01ARZ3NDEKTSV4RRFFQ69G5FAV", valid: true},
		{name: "空字符串", input: "", valid: false},
		{name: "长度不足", input: "01ARZ3NDEK", valid: false},
		{name: "非法字符", input: "01ARZ3NDEKTSV4RRFFQ69G5FAU!", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidULID(tt.input))
		})
	}
}
