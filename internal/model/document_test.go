package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievedChunkMeta(t *testing.T) {
	c := RetrievedChunk{Metadata: map[string]any{
		MetaSourceFile: "brief.pdf",
		MetaPageIndex:  float64(3),
		MetaChunkIndex: int64(7),
		"year":         float64(2020),
		"ratio":        0.5,
		"bad":          "x1",
		"nil":          nil,
	}}

	assert.Equal(t, "brief.pdf", c.MetaString(MetaSourceFile))
	assert.Equal(t, "2020", c.MetaString("year"))
	assert.Equal(t, "0.5", c.MetaString("ratio"))
	assert.Equal(t, "", c.MetaString("nil"))
	assert.Equal(t, "", c.MetaString("missing"))

	n, ok := c.MetaInt(MetaPageIndex)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = c.MetaInt(MetaChunkIndex)
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = c.MetaInt("ratio")
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	_, ok = c.MetaInt("bad")
	assert.False(t, ok)
	_, ok = c.MetaInt("missing")
	assert.False(t, ok)
}

func TestCountersAdd(t *testing.T) {
	c := JobCounters{FilesDiscovered: 3}.Add(JobCounters{FilesProcessed: 1, ChunksEmitted: 10})
	assert.Equal(t, JobCounters{FilesDiscovered: 3, FilesProcessed: 1, ChunksEmitted: 10}, c)

	e := EmbeddingCounters{FilesEmbedded: 1}.Add(EmbeddingCounters{FilesEmbedded: 1, EmbeddingsStored: 4})
	assert.Equal(t, EmbeddingCounters{FilesEmbedded: 2, EmbeddingsStored: 4}, e)
}
