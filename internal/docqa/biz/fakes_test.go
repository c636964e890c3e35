package biz

import (
	"context"
	"sync"

	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/llm"
)

// stubChat 返回固定回复并记录收到的提示词。
type stubChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	prompts  []string
	messages [][]llm.Message
}

func (s *stubChat) Chat(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages)
	return s.reply, s.err
}

func (s *stubChat) Generate(_ context.Context, prompt string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubChat) Name() string { return "stub-chat" }

func (s *stubChat) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func (s *stubChat) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts) + len(s.messages)
}

// stubEmbedder 为已知文本返回预设向量，其余返回 fallback。
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	texts    int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = s.fallback
		}
	}
	s.texts += len(texts)
	return out, nil
}

func (s *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *stubEmbedder) Name() string { return "stub-embedder" }

func (s *stubEmbedder) embedded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts
}

// failingIndex 查询与取回都返回错误。
type failingIndex struct {
	*store.MemoryIndex
	err error
}

func (f failingIndex) Query(context.Context, store.VectorQuery) ([]model.RetrievedChunk, error) {
	return nil, f.err
}

func (f failingIndex) Fetch(context.Context, map[string]string, string, int) ([]model.RetrievedChunk, error) {
	return nil, f.err
}

func (f failingIndex) Upsert(context.Context, []store.VectorRecord) error {
	return f.err
}

// fetchFailingIndex 查询正常，只有整篇取回返回错误。
type fetchFailingIndex struct {
	*store.MemoryIndex
	err error
}

func (f fetchFailingIndex) Fetch(context.Context, map[string]string, string, int) ([]model.RetrievedChunk, error) {
	return nil, f.err
}
