package biz

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/internal/pkg/rag/ragctx"
	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/errors"
	ctxlog "github.com/kart-io/docqa/pkg/infra/logger"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	obsmetrics "github.com/kart-io/docqa/pkg/observability/metrics"
)

// Step 路由结果。
type Step string

const (
	StepQnA       Step = "qna"
	StepSummarize Step = "summarize"
)

// 固定回复。
const (
	InsufficientContext = "Context unavailable or insufficient."
	QnAApology          = "I'm sorry, I couldn't generate an answer right now."
	SummaryApology      = "I'm sorry, I couldn't generate a summary right now."
	QnAEmpty            = "I'm not sure based on the available information."
	SummaryEmpty        = "I was unable to create a summary with the available information."
)

// 附加在结果上的非致命错误说明。
const (
	advisoryRouterFailed  = "Unable to determine next step. Defaulting to question answering."
	advisoryRouterLabel   = "Router returned an unrecognized label. Defaulting to question answering."
	advisoryAnswerFailed  = "Answer generation failed."
	advisorySummaryFailed = "Summary generation failed."
	messageRequired       = "Message is required."
	noResponse            = "Unable to generate a response."
)

// 结果类型。
const (
	ResultQnA     = "qna"
	ResultSummary = "summary"
	ResultError   = "error"
	ResultUnknown = "unknown"
)

// ChatConfig 对话流程配置。
type ChatConfig struct {
	TopK                   int
	MaxContextChars        int
	MaxSnippetChars        int
	SummaryFullDocument    bool
	SummaryMaxContextChars int
	SummaryDocMaxChunks    int
}

// ChatRequest 对话请求。History 中最后一条用户消息之后追加 Message。
type ChatRequest struct {
	Message     string
	DatasetName string
	History     []llm.Message
}

// ChatResult 对话结果。Type 为 qna、summary、error 或 unknown。
type ChatResult struct {
	Type          string           `json:"type"`
	Answer        string           `json:"answer,omitempty"`
	ContextChunks int              `json:"context_chunks"`
	Citations     []model.Citation `json:"citations,omitempty"`
	Error         string           `json:"error,omitempty"`
	Truncated     bool             `json:"truncated,omitempty"`
	Messages      []llm.Message    `json:"-"`
}

// Generation 一次生成调用的结果。
type Generation struct {
	Text string
	Err  error
}

// nodeResult 单个节点的输出。
type nodeResult struct {
	answer    string
	chunks    int
	citations []model.Citation
	advisory  string
	truncated bool
}

// ChatService 路由对话：先判定 qna 或 summarize，再执行对应的检索与生成。
type ChatService struct {
	router     llm.ChatProvider
	composer   llm.ChatProvider
	summarizer llm.ChatProvider
	retriever  *Retriever
	builder    *ragctx.Builder
	config     ChatConfig
	metrics    *metrics.Metrics
}

// NewChatService 创建对话服务。summarizer 为 nil 时使用 composer，m 为 nil 时使用私有指标。
func NewChatService(router, composer, summarizer llm.ChatProvider, retriever *Retriever, config ChatConfig, m *metrics.Metrics) *ChatService {
	if summarizer == nil {
		summarizer = composer
	}
	if m == nil {
		m = metrics.New(obsmetrics.NewRegistry())
	}
	return &ChatService{
		router:     router,
		composer:   composer,
		summarizer: summarizer,
		retriever:  retriever,
		builder:    ragctx.NewBuilder(config.MaxContextChars, config.MaxSnippetChars),
		config:     config,
		metrics:    m,
	}
}

// Chat 执行一次对话。除空消息外总是返回带回答的结果，失败以降级回答与 Error 体现。
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) *ChatResult {
	messages := append([]llm.Message(nil), req.History...)
	if req.Message != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})
	}
	question := llm.LastUserMessage(messages)
	if strings.TrimSpace(question) == "" {
		return &ChatResult{Type: ResultError, Answer: messageRequired, Error: messageRequired, Messages: messages}
	}

	ctxlog.FromContext(ctx).Infow("chat request received", "message_preview", textutil.Preview(question, 200), "dataset", req.DatasetName)

	ctx, span := tracing.StartSpan(ctx, "docqa.chat", attribute.String("docqa.dataset", req.DatasetName))
	defer span.End()
	defer s.metrics.ObserveChat(time.Now())

	step, advisory := s.Decide(ctx, question)
	s.metrics.RecordChat(string(step))
	span.SetAttributes(attribute.String("docqa.step", string(step)))

	var (
		out        nodeResult
		resultType string
	)
	switch step {
	case StepSummarize:
		out = s.summarize(ctx, question, req.DatasetName)
		resultType = ResultSummary
	default:
		out = s.answer(ctx, question, req.DatasetName)
		resultType = ResultQnA
	}

	if out.advisory == "" {
		out.advisory = advisory
	}
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: out.answer})

	res := &ChatResult{
		Type:          resultType,
		Answer:        out.answer,
		ContextChunks: out.chunks,
		Citations:     out.citations,
		Error:         out.advisory,
		Truncated:     out.truncated,
		Messages:      messages,
	}
	switch {
	case res.Answer != "":
	case res.Error != "":
		res.Type, res.Answer = ResultError, res.Error
	default:
		res.Type, res.Answer = ResultUnknown, noResponse
	}

	ctxlog.FromContext(ctx).Infow("chat response generated", "type", res.Type, "context_chunks", res.ContextChunks, "advisory", res.Error)
	return res
}

// Decide 判定下一步。路由失败或返回未知标签时回退到 qna 并返回说明。
func (s *ChatService) Decide(ctx context.Context, question string) (Step, string) {
	if s.router == nil {
		return StepQnA, ""
	}

	reply, err := s.router.Generate(ctx, render(decidePrompt, map[string]string{"question": question}), "")
	if err != nil {
		ctxlog.FromContext(ctx).Errorw("routing failed", "error", err.Error())
		s.metrics.RecordRouterFallback()
		return StepQnA, advisoryRouterFailed
	}

	label := strings.ToLower(strings.Trim(reply, " \t\r\n\"'`."))
	switch Step(label) {
	case StepQnA, StepSummarize:
		ctxlog.FromContext(ctx).Infow("routing decision completed", "decision", label)
		return Step(label), ""
	default:
		ctxlog.FromContext(ctx).Warnw("router produced unexpected decision, defaulting to qna", "decision", textutil.Preview(reply, 40))
		s.metrics.RecordRouterFallback()
		return StepQnA, advisoryRouterLabel
	}
}

// answer 问答节点。
func (s *ChatService) answer(ctx context.Context, question, dataset string) nodeResult {
	var out nodeResult

	r := s.retriever.Retrieve(ctx, question, s.config.TopK, dataset)
	if r.Err != nil {
		s.metrics.RecordRetrievalError()
		out.advisory = r.Err.Message
	}
	out.chunks = len(r.Chunks)

	contextText, citations := s.builder.BuildQnAContext(r.Chunks)
	if contextText == "" {
		contextText = InsufficientContext
	}
	out.citations = citations

	prompt := render(qnaPrompt, map[string]string{"question": question, "context": contextText})
	ctxlog.FromContext(ctx).Debugw("qna prompt constructed", "prompt", textutil.Preview(prompt, 4000), "citations", len(citations))

	gen := s.generate(ctx, s.composer, prompt)
	switch {
	case gen.Err != nil:
		ctxlog.FromContext(ctx).Errorw("qna generation failed", "error", gen.Err.Error())
		s.metrics.RecordGenerationError()
		out.answer = QnAApology
		if out.advisory == "" {
			out.advisory = advisoryAnswerFailed
		}
	case gen.Text == "":
		out.answer = QnAEmpty
	default:
		out.answer = gen.Text
	}

	ctxlog.FromContext(ctx).Infow("qna completed", "answer_preview", textutil.Preview(out.answer, 120), "context_chunks", out.chunks)
	return out
}

// summarize 摘要节点。整篇文档模式下先取排名第一的块，再取回其所属文档的全部块；
// 任一步没有结果时退回 top-k 模式。
func (s *ChatService) summarize(ctx context.Context, text, dataset string) nodeResult {
	var (
		out         nodeResult
		contextText string
	)

	if s.config.SummaryFullDocument {
		contextText, out = s.fullDocumentContext(ctx, text, dataset)
	}

	if contextText == "" && out.advisory == "" {
		r := s.retriever.Retrieve(ctx, text, s.config.TopK, dataset)
		if r.Err != nil {
			s.metrics.RecordRetrievalError()
			out.advisory = r.Err.Message
		}
		contextText = s.builder.BuildSummaryContext(r.Chunks)
		out.chunks = len(r.Chunks)
	}
	if contextText == "" {
		contextText = InsufficientContext
	}

	prompt := render(summaryPrompt, map[string]string{"text": text, "context": contextText})
	ctxlog.FromContext(ctx).Debugw("summary prompt constructed", "prompt_chars", textutil.RuneLen(prompt))

	gen := s.generate(ctx, s.summarizer, prompt)
	switch {
	case gen.Err != nil:
		ctxlog.FromContext(ctx).Errorw("summary generation failed", "error", gen.Err.Error())
		s.metrics.RecordGenerationError()
		out.answer = SummaryApology
		if out.advisory == "" {
			out.advisory = advisorySummaryFailed
		}
	case gen.Text == "":
		out.answer = SummaryEmpty
	default:
		out.answer = gen.Text
	}

	ctxlog.FromContext(ctx).Infow("summary completed", "summary_preview", textutil.Preview(out.answer, 120), "context_chunks", out.chunks)
	return out
}

// fullDocumentContext 重建排名第一的文档。检索失败时返回的 advisory 非空。
func (s *ChatService) fullDocumentContext(ctx context.Context, text, dataset string) (string, nodeResult) {
	var out nodeResult

	top := s.retriever.Retrieve(ctx, text, 1, dataset)
	if top.Err != nil {
		s.metrics.RecordRetrievalError()
		out.advisory = top.Err.Message
		return "", out
	}
	if len(top.Chunks) == 0 {
		return "", out
	}

	best := top.Chunks[0]
	documentID := best.MetaString(model.MetaDocumentID)
	sourceFile := best.MetaString(model.MetaSourceFile)
	ctxlog.FromContext(ctx).Infow("summary target identified", "document_id", documentID, "source_file", sourceFile, "dataset", dataset)

	chunks := s.retriever.FetchDocument(ctx, documentID, sourceFile, dataset, s.config.SummaryDocMaxChunks)
	if len(chunks) == 0 {
		ctxlog.FromContext(ctx).Warnw("full document fetch returned no chunks", "document_id", documentID, "source_file", sourceFile)
		return "", out
	}

	ragctx.SortByDocumentOrder(chunks)
	contextText, truncated := ragctx.AssembleDocumentContext(chunks, s.config.SummaryMaxContextChars)
	if truncated {
		ctxlog.FromContext(ctx).Warnw("summary context truncated", "document_id", documentID, "max_chars", s.config.SummaryMaxContextChars)
	}
	out.chunks = len(chunks)
	out.truncated = truncated
	return contextText, out
}

func (s *ChatService) generate(ctx context.Context, provider llm.ChatProvider, prompt string) Generation {
	if provider == nil {
		return Generation{Err: errors.ErrGeneration.WithCause(llm.ErrProviderNotConfigured)}
	}
	text, err := provider.Generate(ctx, prompt, "")
	if err != nil {
		return Generation{Err: errors.ErrGeneration.WithCause(err)}
	}
	return Generation{Text: strings.TrimSpace(text)}
}
