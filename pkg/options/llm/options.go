// Package llm provides model provider options. Each use of a model (embedding,
// answer composer, router, summarizer) gets its own flag group.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 单个模型用途的供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（openai、gemini）。
	Provider string `json:"provider" mapstructure:"provider"`
	// BaseURL 兼容 OpenAI 的服务地址，gemini 忽略。
	BaseURL string `json:"base-url" mapstructure:"base-url"`
	APIKey  string `json:"-" mapstructure:"api-key"`
	Model   string `json:"model" mapstructure:"model"`
	// Temperature 小于 0 表示使用模型默认值。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	// Dimensions 仅用于嵌入，0 表示模型默认值。
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`
	// Timeout 单次调用超时。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxRetries 首次调用之后的最大重试次数。
	MaxRetries   int    `json:"max-retries" mapstructure:"max-retries"`
	Organization string `json:"organization" mapstructure:"organization"`

	// group 是 flag 前缀，例如 "embedding"、"router-llm"。
	group string
}

func newProviderOptions(group, provider, model string, temperature float64) *ProviderOptions {
	return &ProviderOptions{
		Provider:    provider,
		Model:       model,
		Temperature: temperature,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
		group:       group,
	}
}

// NewEmbeddingOptions 嵌入模型默认配置。
func NewEmbeddingOptions() *ProviderOptions {
	o := newProviderOptions("embedding", "openai", "text-embedding-3-small", -1)
	o.Dimensions = 1536
	return o
}

// NewComposerOptions 回答生成模型默认配置（较高温度）。
func NewComposerOptions() *ProviderOptions {
	return newProviderOptions("chat", "openai", "gpt-4o-mini", 0.3)
}

// NewRouterOptions 路由判定模型默认配置（确定性）。
func NewRouterOptions() *ProviderOptions {
	o := newProviderOptions("router-llm", "gemini", "gemini-1.5-flash", 0)
	o.Timeout = 20 * time.Second
	return o
}

// NewSummaryOptions 摘要生成模型默认配置。
func NewSummaryOptions() *ProviderOptions {
	o := newProviderOptions("summary-llm", "gemini", "gemini-1.5-flash", 0.2)
	o.Timeout = 120 * time.Second
	return o
}

// NewMetadataOptions 元数据抽取模型默认配置。
func NewMetadataOptions() *ProviderOptions {
	return newProviderOptions("metadata-llm", "openai", "gpt-4o-mini", 0)
}

// Group 返回 flag 前缀。
func (o *ProviderOptions) Group() string {
	return o.group
}

// ToConfigMap 转换为供应商工厂使用的配置 map。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	m := map[string]any{
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_retries":  0,
		"organization": o.Organization,
		"dimensions":   o.Dimensions,
	}
	if o.BaseURL != "" {
		m["base_url"] = o.BaseURL
	}
	if o.Temperature >= 0 {
		m["temperature"] = o.Temperature
	}
	return m
}

// AddFlags adds flags for the provider group to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(append(prefixes, o.group)...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Model provider (openai, gemini).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "OpenAI-compatible API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key (prefer the provider env var).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name.")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature, negative for the model default.")
	fs.IntVar(&o.Dimensions, p+"dimensions", o.Dimensions, "Requested embedding dimension, 0 for the model default.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Per-call timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Retries after the first failed call.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "OpenAI organization ID.")
}

// Complete fills the API key from OPENAI_API_KEY or GEMINI_API_KEY when unset.
func (o *ProviderOptions) Complete() error {
	if o.APIKey != "" {
		return nil
	}
	switch o.Provider {
	case "openai":
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		o.APIKey = os.Getenv("GEMINI_API_KEY")
		if o.APIKey == "" {
			o.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	return nil
}

// Validate validates the provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("%s.provider must be openai or gemini, got %q", o.group, o.Provider))
	}
	if strings.TrimSpace(o.Model) == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", o.group))
	}
	if o.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s.api-key is required", o.group))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", o.group))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s.max-retries must not be negative", o.group))
	}
	return errs
}
