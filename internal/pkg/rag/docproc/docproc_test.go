package docproc_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kart-io/docqa/internal/pkg/rag/chunker"
	"github.com/kart-io/docqa/internal/pkg/rag/docproc"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/internal/pkg/rag/langdetect"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedPDF struct {
	pages []string
}

func (p pagedPDF) NumPages() int { return len(p.pages) }

func (p pagedPDF) BlockText(i int) (string, error) { return p.pages[i], nil }

func (p pagedPDF) PlainText(int) (string, error) { return "", nil }

func (p pagedPDF) open([]byte) (docutil.PDFDocument, error) { return p, nil }

type fixedLang string

func (f fixedLang) Detect(string) string { return string(f) }

func fixedClock() time.Time {
	return time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
}

func newProcessor(t *testing.T, pages []string, lang string, opts ...docproc.Option) *docproc.Processor {
	t.Helper()
	splitter, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)

	extractor := docutil.New(docutil.WithPDFOpener(pagedPDF{pages: pages}.open))
	opts = append([]docproc.Option{docproc.WithClock(fixedClock)}, opts...)
	return docproc.New(extractor, splitter, fixedLang(lang), opts...)
}

func TestProcessTwoPagePDFWithImageOnlyPage(t *testing.T) {
	page1 := strings.Repeat("The court considered the matter carefully. ", 14)
	p := newProcessor(t, []string{page1, "   "}, "en")

	res, err := p.Process(context.Background(), []byte("%PDF"), "Case Brief.pdf", docproc.ProcessOptions{SourceURL: "https://files/1"})
	require.NoError(t, err)

	assert.Equal(t, "doc:case-brief@2025-03-10", res.DocID)
	assert.Equal(t, 2, res.TotalPageCount)
	assert.Equal(t, 1, res.PagesWithoutText)
	assert.Equal(t, "en", res.Language)
	assert.False(t, res.LangUndetected)
	require.GreaterOrEqual(t, len(res.Chunks), 2)
	assert.Equal(t, len(res.Chunks), res.ChunksEmitted)

	for i, c := range res.Chunks {
		assert.Equal(t, 0, c.PageIndex)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, 2, c.TotalPageCount)
		assert.Equal(t, "en", c.Language)
		assert.Equal(t, "https://files/1", c.SourceURL)
		assert.Equal(t, res.DocID, c.DocID)
	}
}

func TestProcessChunkIndexRestartsPerPage(t *testing.T) {
	p := newProcessor(t, []string{"first page", "", "third page"}, "und")

	res, err := p.Process(context.Background(), nil, "x.pdf", docproc.ProcessOptions{DocID: "doc:explicit"})
	require.NoError(t, err)

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 0, res.Chunks[0].PageIndex)
	assert.Equal(t, 0, res.Chunks[0].ChunkIndex)
	assert.Equal(t, 2, res.Chunks[1].PageIndex)
	assert.Equal(t, 0, res.Chunks[1].ChunkIndex)
	assert.Equal(t, "doc:explicit", res.DocID)
	assert.True(t, res.LangUndetected)
}

func TestProcessEmptyDocument(t *testing.T) {
	p := newProcessor(t, nil, "en")

	res, err := p.Process(context.Background(), []byte(" \n\n "), "blank.txt", docproc.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, langdetect.Und, res.Language)
	assert.Empty(t, res.Chunks)
	assert.Equal(t, 0, res.ChunksEmitted)
	assert.Equal(t, 1, res.TotalPageCount)
}

func TestProcessUnsupported(t *testing.T) {
	p := newProcessor(t, nil, "en")

	_, err := p.Process(context.Background(), []byte("x"), "image.png", docproc.ProcessOptions{})
	assert.True(t, errors.Is(err, docutil.ErrUnsupportedFormat))
}

func TestProcessSplitterOverride(t *testing.T) {
	p := newProcessor(t, nil, "en")
	small, err := chunker.New(10, 0)
	require.NoError(t, err)

	res, err := p.Process(context.Background(), []byte("alpha beta gamma delta epsilon"), "n.txt", docproc.ProcessOptions{Splitter: small})
	require.NoError(t, err)
	assert.Greater(t, res.ChunksEmitted, 1)
}

func TestProcessOnPool(t *testing.T) {
	workers, err := pool.NewPool("extract", pool.ExtractionPool, pool.ExtractionPoolConfig(2))
	require.NoError(t, err)
	defer workers.Release()

	p := newProcessor(t, nil, "fr", docproc.WithPool(workers))
	res, err := p.Process(context.Background(), []byte("Bonjour tout le monde"), "salut.txt", docproc.ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fr", res.Language)
	assert.Equal(t, 1, res.ChunksEmitted)

	_, err = p.Process(context.Background(), []byte("x"), "a.xlsx", docproc.ProcessOptions{})
	assert.ErrorIs(t, err, docutil.ErrUnsupportedFormat)
}

func TestDocID(t *testing.T) {
	byDate := newProcessor(t, nil, "en")
	assert.Equal(t, "doc:annual-report-2024@2025-03-10", byDate.DocID("reports/Annual Report 2024.PDF", nil))

	byHash := newProcessor(t, nil, "en", docproc.WithDocIDStrategy(docproc.DocIDByHash))
	id1 := byHash.DocID("a.pdf", []byte("content"))
	assert.Equal(t, id1, byHash.DocID("a.pdf", []byte("content")))
	assert.NotEqual(t, id1, byHash.DocID("a.pdf", []byte("other")))
	assert.True(t, strings.HasPrefix(id1, "doc:a@"))
	assert.Len(t, strings.TrimPrefix(id1, "doc:a@"), 12)
}
