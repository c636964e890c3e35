package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/ragctx"
	"github.com/kart-io/docqa/pkg/llm"
	obsmetrics "github.com/kart-io/docqa/pkg/observability/metrics"
)

func chunkRecord(id string, vec []float32, dataset, documentID, source string, page, chunk int, text string) store.VectorRecord {
	return store.VectorRecord{
		ID:        id,
		Vector:    vec,
		Namespace: dataset,
		Metadata: map[string]any{
			model.MetaDatasetName: dataset,
			model.MetaDocumentID:  documentID,
			model.MetaSourceFile:  source,
			model.MetaPageIndex:   page,
			model.MetaChunkIndex:  chunk,
			model.MetaText:        text,
		},
	}
}

// seededIndex 文档 A 的块以乱序写入；other 数据集中有一个与查询完全相同的向量。
func seededIndex(t *testing.T) *store.MemoryIndex {
	t.Helper()
	idx := store.NewMemoryIndex("test-index", 3)
	err := idx.Upsert(context.Background(), []store.VectorRecord{
		chunkRecord("a_p1_c0", []float32{0.6, 0.8, 0}, "court", "CASE-A", "a.pdf", 1, 0, "Appeal dismissed."),
		chunkRecord("a_p0_c0", []float32{1, 0, 0}, "court", "CASE-A", "a.pdf", 0, 0, "The petitioner filed an appeal."),
		chunkRecord("a_p0_c1", []float32{0.8, 0.6, 0}, "court", "CASE-A", "a.pdf", 0, 1, "The lower court erred."),
		chunkRecord("b_p0_c0", []float32{0, 0, 1}, "court", "CASE-B", "b.pdf", 0, 0, "Tax assessment upheld."),
		chunkRecord("c_p0_c0", []float32{1, 0, 0}, "other", "CASE-C", "c.pdf", 0, 0, "Unrelated dataset."),
	})
	require.NoError(t, err)
	return idx
}

type chatFixture struct {
	router     *stubChat
	composer   *stubChat
	summarizer *stubChat
	embedder   *stubEmbedder
	metrics    *metrics.Metrics
	svc        *ChatService
}

func newChatFixture(t *testing.T, idx store.VectorIndex, route string, cfg ChatConfig) *chatFixture {
	t.Helper()
	f := &chatFixture{
		router:     &stubChat{reply: route},
		composer:   &stubChat{reply: "The appeal was filed by the petitioner [CIT:1]."},
		summarizer: &stubChat{reply: "Summary of the case."},
		embedder:   &stubEmbedder{fallback: []float32{1, 0, 0}},
		metrics:    metrics.New(obsmetrics.NewRegistry()),
	}
	retriever := NewRetriever(idx, f.embedder, 5)
	f.svc = NewChatService(f.router, f.composer, f.summarizer, retriever, cfg, f.metrics)
	return f
}

func defaultChatConfig() ChatConfig {
	return ChatConfig{
		TopK:                   5,
		MaxContextChars:        6000,
		MaxSnippetChars:        1200,
		SummaryFullDocument:    true,
		SummaryMaxContextChars: 60000,
		SummaryDocMaxChunks:    500,
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		err          error
		wantStep     Step
		wantAdvisory string
	}{
		{name: "摘要标签", reply: "summarize", wantStep: StepSummarize},
		{name: "问答标签带空白与大写", reply: " QnA\n", wantStep: StepQnA},
		{name: "带引号与句号", reply: `"summarize."`, wantStep: StepSummarize},
		{name: "未知标签回退", reply: "translate", wantStep: StepQnA, wantAdvisory: advisoryRouterLabel},
		{name: "路由失败回退", err: errors.New("boom"), wantStep: StepQnA, wantAdvisory: advisoryRouterFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, seededIndex(t), tt.reply, defaultChatConfig())
			f.router.err = tt.err

			step, advisory := f.svc.Decide(context.Background(), "what happened?")
			assert.Equal(t, tt.wantStep, step)
			assert.Equal(t, tt.wantAdvisory, advisory)

			fallbacks := f.metrics.Stats()["chat"].(map[string]any)["router_fallbacks"]
			if tt.wantAdvisory != "" {
				assert.Equal(t, 1.0, fallbacks)
			} else {
				assert.Equal(t, 0.0, fallbacks)
			}
		})
	}
}

func TestDecideWithoutRouter(t *testing.T) {
	svc := NewChatService(nil, &stubChat{}, nil, NewRetriever(seededIndex(t), &stubEmbedder{fallback: []float32{1, 0, 0}}, 5), defaultChatConfig(), nil)
	step, advisory := svc.Decide(context.Background(), "anything")
	assert.Equal(t, StepQnA, step)
	assert.Empty(t, advisory)
}

func TestChatEmptyMessage(t *testing.T) {
	f := newChatFixture(t, seededIndex(t), "qna", defaultChatConfig())

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "   "})
	assert.Equal(t, ResultError, res.Type)
	assert.Equal(t, messageRequired, res.Error)
	assert.Zero(t, f.router.calls())
}

func TestChatQnA(t *testing.T) {
	f := newChatFixture(t, seededIndex(t), "qna", defaultChatConfig())

	res := f.svc.Chat(context.Background(), ChatRequest{
		Message:     "Who filed the appeal?",
		DatasetName: "court",
		History:     []llm.Message{{Role: llm.RoleUser, Content: "hello"}, {Role: llm.RoleAssistant, Content: "hi"}},
	})

	assert.Equal(t, ResultQnA, res.Type)
	assert.Equal(t, "The appeal was filed by the petitioner [CIT:1].", res.Answer)
	assert.Empty(t, res.Error)
	assert.Equal(t, 4, res.ContextChunks)
	require.Len(t, res.Citations, 4)
	assert.Equal(t, 1, res.Citations[0].Label)
	assert.Equal(t, "a_p0_c0", res.Citations[0].ID)
	for _, c := range res.Citations {
		assert.NotEqual(t, "c.pdf", c.SourceFile)
	}

	prompt := f.composer.lastPrompt()
	assert.Contains(t, prompt, "[CIT:1] a.pdf\nThe petitioner filed an appeal.")
	assert.Contains(t, prompt, "Who filed the appeal?")

	require.Len(t, res.Messages, 4)
	assert.Equal(t, llm.RoleAssistant, res.Messages[3].Role)
	assert.Equal(t, res.Answer, res.Messages[3].Content)
}

func TestChatQnADegradation(t *testing.T) {
	tests := []struct {
		name         string
		embedErr     error
		genReply     string
		genErr       error
		wantAnswer   string
		wantError    string
		wantInPrompt string
	}{
		{
			name:         "检索失败仍生成回答",
			embedErr:     errors.New("quota"),
			genReply:     "I'm not sure.",
			wantAnswer:   "I'm not sure.",
			wantError:    msgEmbedFailed,
			wantInPrompt: InsufficientContext,
		},
		{
			name:       "生成失败返回致歉",
			genErr:     errors.New("timeout"),
			wantAnswer: QnAApology,
			wantError:  advisoryAnswerFailed,
		},
		{
			name:       "检索与生成都失败保留检索说明",
			embedErr:   errors.New("quota"),
			genErr:     errors.New("timeout"),
			wantAnswer: QnAApology,
			wantError:  msgEmbedFailed,
		},
		{
			name:       "空回复",
			genReply:   "  ",
			wantAnswer: QnAEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, seededIndex(t), "qna", defaultChatConfig())
			f.embedder.err = tt.embedErr
			f.composer.reply, f.composer.err = tt.genReply, tt.genErr

			res := f.svc.Chat(context.Background(), ChatRequest{Message: "Who filed the appeal?", DatasetName: "court"})
			assert.Equal(t, ResultQnA, res.Type)
			assert.Equal(t, tt.wantAnswer, res.Answer)
			assert.Equal(t, tt.wantError, res.Error)
			if tt.wantInPrompt != "" {
				assert.Contains(t, f.composer.lastPrompt(), tt.wantInPrompt)
			}
		})
	}
}

func TestChatQnAQueryFailure(t *testing.T) {
	idx := failingIndex{MemoryIndex: store.NewMemoryIndex("broken", 3), err: errors.New("connection refused")}
	f := newChatFixture(t, idx, "qna", defaultChatConfig())

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "Who filed the appeal?"})
	assert.Equal(t, msgQueryFailed, res.Error)
	assert.Zero(t, res.ContextChunks)
	assert.Equal(t, 1.0, f.metrics.Stats()["chat"].(map[string]any)["retrieval_errors"])
}

func TestChatSummaryFullDocument(t *testing.T) {
	f := newChatFixture(t, seededIndex(t), "summarize", defaultChatConfig())

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize the appeal", DatasetName: "court"})

	assert.Equal(t, ResultSummary, res.Type)
	assert.Equal(t, "Summary of the case.", res.Answer)
	assert.Equal(t, 3, res.ContextChunks)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Citations)

	prompt := f.summarizer.lastPrompt()
	assert.Contains(t, prompt, "The petitioner filed an appeal.\n\nThe lower court erred.\n\nAppeal dismissed.")
	assert.NotContains(t, prompt, "Tax assessment upheld.")
	assert.NotContains(t, prompt, "Unrelated dataset.")
	assert.Zero(t, f.composer.calls())
}

func TestChatSummaryTruncated(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.SummaryMaxContextChars = 20
	f := newChatFixture(t, seededIndex(t), "summarize", cfg)

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize the appeal", DatasetName: "court"})
	assert.True(t, res.Truncated)
	assert.NotContains(t, f.summarizer.lastPrompt(), "Appeal dismissed.")
}

func TestChatSummaryTopK(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.SummaryFullDocument = false
	f := newChatFixture(t, seededIndex(t), "summarize", cfg)

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize the appeal", DatasetName: "court"})
	assert.Equal(t, ResultSummary, res.Type)
	assert.Equal(t, 4, res.ContextChunks)
	assert.Contains(t, f.summarizer.lastPrompt(), ragctx.SummarySeparator)
}

func TestChatSummaryFallbacks(t *testing.T) {
	t.Run("索引为空时退回 top-k 并使用占位上下文", func(t *testing.T) {
		f := newChatFixture(t, store.NewMemoryIndex("empty", 3), "summarize", defaultChatConfig())

		res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize"})
		assert.Equal(t, ResultSummary, res.Type)
		assert.Zero(t, res.ContextChunks)
		assert.Contains(t, f.summarizer.lastPrompt(), InsufficientContext)
	})

	t.Run("缺少文档标识时退回 top-k", func(t *testing.T) {
		idx := store.NewMemoryIndex("bare", 3)
		require.NoError(t, idx.Upsert(context.Background(), []store.VectorRecord{
			{ID: "x", Vector: []float32{1, 0, 0}, Metadata: map[string]any{model.MetaText: "Orphan chunk."}},
		}))
		f := newChatFixture(t, idx, "summarize", defaultChatConfig())

		res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize"})
		assert.Equal(t, 1, res.ContextChunks)
		assert.Contains(t, f.summarizer.lastPrompt(), "Orphan chunk.")
	})

	t.Run("整篇取回失败时退回 top-k", func(t *testing.T) {
		idx := fetchFailingIndex{MemoryIndex: seededIndex(t), err: errors.New("milvus down")}
		f := newChatFixture(t, idx, "summarize", defaultChatConfig())

		res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize"})
		assert.Equal(t, ResultSummary, res.Type)
		assert.Empty(t, res.Error)
		assert.Equal(t, 5, res.ContextChunks)
		assert.Contains(t, f.summarizer.lastPrompt(), "Unrelated dataset.")
		assert.Contains(t, f.summarizer.lastPrompt(), ragctx.SummarySeparator)
	})

	t.Run("检索失败不再退回 top-k", func(t *testing.T) {
		f := newChatFixture(t, seededIndex(t), "summarize", defaultChatConfig())
		f.embedder.err = errors.New("quota")

		res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize"})
		assert.Equal(t, msgEmbedFailed, res.Error)
		assert.Equal(t, "Summary of the case.", res.Answer)
		assert.Contains(t, f.summarizer.lastPrompt(), InsufficientContext)
		assert.Equal(t, 1.0, f.metrics.Stats()["chat"].(map[string]any)["retrieval_errors"])
	})

	t.Run("生成失败返回致歉", func(t *testing.T) {
		f := newChatFixture(t, seededIndex(t), "summarize", defaultChatConfig())
		f.summarizer.err = errors.New("timeout")

		res := f.svc.Chat(context.Background(), ChatRequest{Message: "Summarize", DatasetName: "court"})
		assert.Equal(t, ResultSummary, res.Type)
		assert.Equal(t, SummaryApology, res.Answer)
		assert.Equal(t, advisorySummaryFailed, res.Error)
	})
}

func TestChatSummarizerDefaultsToComposer(t *testing.T) {
	composer := &stubChat{reply: "composed summary"}
	router := &stubChat{reply: "summarize"}
	svc := NewChatService(router, composer, nil, NewRetriever(seededIndex(t), &stubEmbedder{fallback: []float32{1, 0, 0}}, 5), defaultChatConfig(), nil)

	res := svc.Chat(context.Background(), ChatRequest{Message: "Summarize", DatasetName: "court"})
	assert.Equal(t, "composed summary", res.Answer)
}

func TestChatRouterAdvisoryKept(t *testing.T) {
	f := newChatFixture(t, seededIndex(t), "", defaultChatConfig())
	f.router.err = errors.New("router down")

	res := f.svc.Chat(context.Background(), ChatRequest{Message: "Who filed the appeal?", DatasetName: "court"})
	assert.Equal(t, ResultQnA, res.Type)
	assert.Equal(t, advisoryRouterFailed, res.Error)
	assert.NotEmpty(t, res.Answer)
}

func TestChatWithoutProviders(t *testing.T) {
	svc := NewChatService(nil, nil, nil, NewRetriever(seededIndex(t), &stubEmbedder{fallback: []float32{1, 0, 0}}, 5), defaultChatConfig(), nil)

	res := svc.Chat(context.Background(), ChatRequest{Message: "Who filed the appeal?"})
	assert.Equal(t, ResultQnA, res.Type)
	assert.Equal(t, QnAApology, res.Answer)
	assert.Equal(t, advisoryAnswerFailed, res.Error)
}
