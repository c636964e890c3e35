// Package options contains flags and options for initializing the docqa server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kart-io/docqa/internal/docqa"
	appopts "github.com/kart-io/docqa/pkg/options/app"
	blobopts "github.com/kart-io/docqa/pkg/options/blob"
	ledgeropts "github.com/kart-io/docqa/pkg/options/ledger"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	mongodbopts "github.com/kart-io/docqa/pkg/options/mongodb"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	serveropts "github.com/kart-io/docqa/pkg/options/server"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
)

var _ appopts.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
// Field keys match flag names so a config file, DOCQA_* variables and flags
// all address the same setting.
type ServerOptions struct {
	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// ServerOptions contains HTTP server, middleware and shutdown configuration.
	ServerOptions *serveropts.Options `json:"server" mapstructure:"server"`

	// TracingOptions contains OpenTelemetry configuration.
	TracingOptions *tracingopts.Options `json:"tracing" mapstructure:"tracing"`

	// MongoOptions contains the ingestion ledger database configuration.
	MongoOptions *mongodbopts.Options `json:"mongodb" mapstructure:"mongodb"`

	// MilvusOptions contains vector database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// RedisOptions contains embedding cache configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	LedgerOptions *ledgeropts.Options `json:"ledger" mapstructure:"ledger"`
	BlobOptions   *blobopts.Options   `json:"blob" mapstructure:"blob"`
	RAGOptions    *ragopts.Options    `json:"rag" mapstructure:"rag"`

	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	ChatOptions      *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	RouterOptions    *llmopts.ProviderOptions `json:"router-llm" mapstructure:"router-llm"`
	SummaryOptions   *llmopts.ProviderOptions `json:"summary-llm" mapstructure:"summary-llm"`
	MetadataOptions  *llmopts.ProviderOptions `json:"metadata-llm" mapstructure:"metadata-llm"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		LogOptions:       logopts.NewOptions(),
		ServerOptions:    serveropts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		MongoOptions:     mongodbopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		LedgerOptions:    ledgeropts.NewOptions(),
		BlobOptions:      blobopts.NewOptions(),
		RAGOptions:       ragopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewComposerOptions(),
		RouterOptions:    llmopts.NewRouterOptions(),
		SummaryOptions:   llmopts.NewSummaryOptions(),
		MetadataOptions:  llmopts.NewMetadataOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.ServerOptions.AddFlags(fss.FlagSet("server"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.MongoOptions.AddFlags(fss.FlagSet("mongodb"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.LedgerOptions.AddFlags(fss.FlagSet("ledger"))
	o.BlobOptions.AddFlags(fss.FlagSet("blob"))
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	for _, p := range o.providers() {
		p.AddFlags(fss.FlagSet(p.Group()))
	}
	return fss
}

func (o *ServerOptions) providers() []*llmopts.ProviderOptions {
	return []*llmopts.ProviderOptions{
		o.EmbeddingOptions,
		o.ChatOptions,
		o.RouterOptions,
		o.SummaryOptions,
		o.MetadataOptions,
	}
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	completers := []struct {
		name string
		fn   func() error
	}{
		{"log", o.LogOptions.Complete},
		{"server", o.ServerOptions.Complete},
		{"tracing", o.TracingOptions.Complete},
		{"mongodb", o.MongoOptions.Complete},
		{"milvus", o.MilvusOptions.Complete},
		{"redis", o.RedisOptions.Complete},
		{"ledger", o.LedgerOptions.Complete},
		{"blob", o.BlobOptions.Complete},
		{"rag", o.RAGOptions.Complete},
	}
	for _, c := range completers {
		if err := c.fn(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	for _, p := range o.providers() {
		if err := p.Complete(); err != nil {
			return fmt.Errorf("%s: %w", p.Group(), err)
		}
	}

	// 嵌入维度未显式指定时与向量集合维度保持一致
	if o.EmbeddingOptions.Dimensions == 0 {
		o.EmbeddingOptions.Dimensions = o.RAGOptions.EmbeddingDim
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.ServerOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	if o.LedgerOptions.UseMongo() {
		errs = append(errs, o.MongoOptions.Validate()...)
	}
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.LedgerOptions.Validate()...)
	errs = append(errs, o.BlobOptions.Validate()...)
	errs = append(errs, o.RAGOptions.Validate()...)
	for _, p := range o.providers() {
		errs = append(errs, p.Validate()...)
	}

	if d := o.EmbeddingOptions.Dimensions; d != o.RAGOptions.EmbeddingDim {
		errs = append(errs, fmt.Errorf("embedding.dimensions (%d) must equal rag.embedding-dim (%d)", d, o.RAGOptions.EmbeddingDim))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds a docqa.Config based on ServerOptions.
func (o *ServerOptions) Config() (*docqa.Config, error) {
	return &docqa.Config{
		LogOptions:       o.LogOptions,
		ServerOptions:    o.ServerOptions,
		TracingOptions:   o.TracingOptions,
		MongoOptions:     o.MongoOptions,
		MilvusOptions:    o.MilvusOptions,
		RedisOptions:     o.RedisOptions,
		LedgerOptions:    o.LedgerOptions,
		BlobOptions:      o.BlobOptions,
		RAGOptions:       o.RAGOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		RouterOptions:    o.RouterOptions,
		SummaryOptions:   o.SummaryOptions,
		MetadataOptions:  o.MetadataOptions,
	}, nil
}
