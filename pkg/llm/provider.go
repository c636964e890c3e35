// Package llm 定义 docqa 使用的模型能力：向量嵌入与文本生成。
// 嵌入、路由、摘要与回答可以分别使用不同供应商。
package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrProviderNotConfigured 未配置所需的模型能力。
var ErrProviderNotConfigured = errors.New("llm provider not configured")

// EmbeddingProvider 向量嵌入能力。同一实例返回的向量维度固定。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量，结果顺序与输入一致。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	Name() string
}

// ChatProvider 文本生成能力。
type ChatProvider interface {
	// Chat 基于多轮消息生成回复。
	Chat(ctx context.Context, messages []Message) (string, error)

	// Generate 单轮生成，systemPrompt 可为空。
	Generate(ctx context.Context, prompt string, systemPrompt string) (string, error)

	Name() string
}

// Message 对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// LastUserMessage 返回最后一条用户消息的内容，没有时返回空字符串。
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// Provider 同时支持嵌入与生成的供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// ProviderFactory 供应商工厂。config 的键与各供应商 Config 的 mapstructure 标签一致。
type ProviderFactory func(config map[string]any) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProvider 注册供应商工厂，在供应商包的 init 中调用。重复注册时后者覆盖前者。
func RegisterProvider(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// NewProvider 按名称创建供应商。
func NewProvider(name string, config map[string]any) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q, registered: %s", name, strings.Join(ListProviders(), ", "))
	}
	return factory(config)
}

// NewEmbeddingProvider 创建供应商并只取其嵌入能力。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider 创建供应商并只取其生成能力。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders 返回已注册的供应商名称，按字母序。
func ListProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}
