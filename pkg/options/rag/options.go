// Package rag provides chunking, retrieval and context-assembly options.
package rag

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Doc id strategies.
const (
	DocIDStrategyDate = "date"
	DocIDStrategyHash = "hash"
)

// Options contains chunking, retrieval and context limits.
type Options struct {
	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the number of matches retrieved for Q&A and top-k summaries.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxContextChars bounds the Q&A context block.
	MaxContextChars int `json:"max-context-chars" mapstructure:"max-context-chars"`
	// MaxSnippetChars bounds each chunk inside a context block.
	MaxSnippetChars int `json:"max-snippet-chars" mapstructure:"max-snippet-chars"`

	// SummaryFullDocument reconstructs the whole top-ranked document for summaries.
	SummaryFullDocument    bool `json:"summary-full-document" mapstructure:"summary-full-document"`
	SummaryMaxContextChars int  `json:"summary-max-context-chars" mapstructure:"summary-max-context-chars"`
	SummaryDocMaxChunks    int  `json:"summary-doc-max-chunks" mapstructure:"summary-doc-max-chunks"`

	// Collection is the vector collection name.
	Collection   string `json:"collection" mapstructure:"collection"`
	EmbeddingDim int    `json:"embedding-dim" mapstructure:"embedding-dim"`

	// DocIDStrategy selects the default doc id: "date" (slug@YYYY-MM-DD) or "hash".
	DocIDStrategy string `json:"doc-id-strategy" mapstructure:"doc-id-strategy"`

	// Workers bounds concurrent document processing during ingestion.
	Workers int `json:"workers" mapstructure:"workers"`
	// EmbedConcurrency bounds concurrent embedding calls per document.
	EmbedConcurrency int `json:"embed-concurrency" mapstructure:"embed-concurrency"`

	// MetadataKeys overrides the fields requested from the metadata extractor.
	MetadataKeys []string `json:"metadata-keys" mapstructure:"metadata-keys"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:              512,
		ChunkOverlap:           50,
		TopK:                   5,
		MaxContextChars:        6000,
		MaxSnippetChars:        1200,
		SummaryFullDocument:    true,
		SummaryMaxContextChars: 60000,
		SummaryDocMaxChunks:    500,
		Collection:             "docqa_chunks",
		EmbeddingDim:           1536,
		DocIDStrategy:          DocIDStrategyDate,
		Workers:                4,
		EmbedConcurrency:       8,
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.IntVar(&o.ChunkSize, p+"chunk-size", o.ChunkSize, "Target chunk size in characters.")
	fs.IntVar(&o.ChunkOverlap, p+"chunk-overlap", o.ChunkOverlap, "Characters shared between consecutive chunks.")
	fs.IntVar(&o.TopK, p+"top-k", o.TopK, "Matches retrieved per query.")
	fs.IntVar(&o.MaxContextChars, p+"max-context-chars", o.MaxContextChars, "Maximum Q&A context length.")
	fs.IntVar(&o.MaxSnippetChars, p+"max-snippet-chars", o.MaxSnippetChars, "Maximum length of one chunk in a context.")
	fs.BoolVar(&o.SummaryFullDocument, p+"summary-full-document", o.SummaryFullDocument, "Summarize the whole top-ranked document.")
	fs.IntVar(&o.SummaryMaxContextChars, p+"summary-max-context-chars", o.SummaryMaxContextChars, "Maximum full-document summary context length.")
	fs.IntVar(&o.SummaryDocMaxChunks, p+"summary-doc-max-chunks", o.SummaryDocMaxChunks, "Maximum chunks fetched for a full document.")
	fs.StringVar(&o.Collection, p+"collection", o.Collection, "Vector collection name.")
	fs.IntVar(&o.EmbeddingDim, p+"embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.StringVar(&o.DocIDStrategy, p+"doc-id-strategy", o.DocIDStrategy, "Default doc id strategy: date or hash.")
	fs.IntVar(&o.Workers, p+"workers", o.Workers, "Documents processed concurrently during ingestion.")
	fs.IntVar(&o.EmbedConcurrency, p+"embed-concurrency", o.EmbedConcurrency, "Concurrent embedding calls per document.")
	fs.StringSliceVar(&o.MetadataKeys, p+"metadata-keys", o.MetadataKeys, "Metadata fields to extract (default legal schema).")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap > o.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk-overlap must be between 0 and chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top-k must be positive"))
	}
	if o.MaxContextChars <= 0 || o.MaxSnippetChars <= 0 || o.SummaryMaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("rag context limits must be positive"))
	}
	if o.SummaryDocMaxChunks <= 0 {
		errs = append(errs, fmt.Errorf("rag.summary-doc-max-chunks must be positive"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("rag.embedding-dim must be positive"))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("rag.collection is required"))
	}
	if o.DocIDStrategy != DocIDStrategyDate && o.DocIDStrategy != DocIDStrategyHash {
		errs = append(errs, fmt.Errorf("rag.doc-id-strategy must be %q or %q", DocIDStrategyDate, DocIDStrategyHash))
	}
	if o.Workers <= 0 || o.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("rag.workers and rag.embed-concurrency must be positive"))
	}
	return errs
}

// Complete completes the RAG options with defaults.
func (o *Options) Complete() error {
	if o.DocIDStrategy == "" {
		o.DocIDStrategy = DocIDStrategyDate
	}
	return nil
}
