// Package gemini 基于 generative-ai-go SDK 实现 Google Gemini 供应商。
// docqa 用它承担低温度的路由判定与摘要生成。
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kart-io/docqa/pkg/llm"
)

// ProviderName 供应商注册名。
const ProviderName = "gemini"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config 供应商配置。
type Config struct {
	APIKey     string `json:"-" mapstructure:"api_key"`
	ChatModel  string `json:"chat_model" mapstructure:"chat_model"`
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// Temperature 小于 0 表示使用模型默认值。
	Temperature     float32       `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int32         `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		ChatModel:   "gemini-1.5-flash",
		EmbedModel:  "text-embedding-004",
		Temperature: -1,
		Timeout:     120 * time.Second,
	}
}

// Provider Gemini 供应商。
type Provider struct {
	config *Config
	client *genai.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	switch v := configMap["temperature"].(type) {
	case float64:
		cfg.Temperature = float32(v)
	case float32:
		cfg.Temperature = v
	}
	if v, ok := configMap["max_tokens"].(int); ok && v > 0 {
		cfg.MaxOutputTokens = int32(v)
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key is required")
	}
	return NewProviderWithConfig(context.Background(), cfg)
}

// NewProviderWithConfig 创建 SDK 客户端。
func NewProviderWithConfig(ctx context.Context, cfg *Config) (*Provider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{config: cfg, client: client}, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

// Close 释放 SDK 客户端。
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *Provider) model(system string) *genai.GenerativeModel {
	m := p.client.GenerativeModel(p.config.ChatModel)
	if p.config.Temperature >= 0 {
		m.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxOutputTokens > 0 {
		m.SetMaxOutputTokens(p.config.MaxOutputTokens)
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return m
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.config.Timeout)
}

func (p *Provider) Generate(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	resp, err := p.model(systemPrompt).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp), nil
}

// Chat 将系统消息合并为 SystemInstruction，其余消息作为历史，最后一条作为本轮输入。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, history := splitMessages(messages)
	if len(history) == 0 {
		return "", fmt.Errorf("gemini chat: no user message")
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	cs := p.model(system).StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	return responseText(resp), nil
}

// Embed 使用批量接口生成向量。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	em := p.client.EmbeddingModel(p.config.EmbedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func splitMessages(messages []llm.Message) (string, []*genai.Content) {
	var system []string
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return strings.Join(system, "\n\n"), history
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
