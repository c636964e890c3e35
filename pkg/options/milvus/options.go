// Package milvusopts configures the Milvus vector index.
package milvusopts

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options selects and tunes the Milvus-backed vector index.
type Options struct {
	// Enabled false keeps vectors in an in-process index.
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Address  string `json:"address" mapstructure:"address"`
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	// APIKey authenticates against managed deployments instead of a
	// username and password.
	APIKey string `json:"-" mapstructure:"api-key"`

	// ConnectTimeout bounds the initial handshake.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// HNSW parameters used when the collection index is first built.
	HNSWM              int `json:"hnsw-m" mapstructure:"hnsw-m"`
	HNSWEfConstruction int `json:"hnsw-ef-construction" mapstructure:"hnsw-ef-construction"`
	// SearchEf is the minimum ef used per search; it is raised to top-k
	// when smaller.
	SearchEf int `json:"search-ef" mapstructure:"search-ef"`
}

// NewOptions returns defaults for a local standalone Milvus.
func NewOptions() *Options {
	return &Options{
		Enabled:            true,
		Address:            "localhost:19530",
		Database:           "default",
		ConnectTimeout:     30 * time.Second,
		HNSWM:              16,
		HNSWEfConstruction: 200,
		SearchEf:           64,
	}
}

// AddFlags registers the milvus.* flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "milvus."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Use Milvus as the vector index; false keeps vectors in memory.")
	fs.StringVar(&o.Address, p+"address", o.Address, "Milvus address (host:port).")
	fs.StringVar(&o.Database, p+"database", o.Database, "Milvus database.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Milvus username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Milvus password. Prefer MILVUS_PASSWORD.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Milvus API key. Prefer MILVUS_API_KEY.")
	fs.DurationVar(&o.ConnectTimeout, p+"connect-timeout", o.ConnectTimeout, "Connection timeout.")
	fs.IntVar(&o.HNSWM, p+"hnsw-m", o.HNSWM, "HNSW graph degree used when creating the index.")
	fs.IntVar(&o.HNSWEfConstruction, p+"hnsw-ef-construction", o.HNSWEfConstruction, "HNSW build-time candidate list size.")
	fs.IntVar(&o.SearchEf, p+"search-ef", o.SearchEf, "Minimum HNSW search-time candidate list size.")
}

// Complete reads secrets from MILVUS_PASSWORD and MILVUS_API_KEY when unset.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("MILVUS_PASSWORD")
	}
	if o.APIKey == "" {
		o.APIKey = os.Getenv("MILVUS_API_KEY")
	}
	return nil
}

// Validate checks the options only when Milvus is enabled.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("milvus address is required"))
	}
	if o.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("milvus connect-timeout must be positive"))
	}
	if o.HNSWM < 2 || o.HNSWM > 2048 {
		errs = append(errs, fmt.Errorf("milvus hnsw-m must be between 2 and 2048"))
	}
	if o.HNSWEfConstruction <= 0 || o.SearchEf <= 0 {
		errs = append(errs, fmt.Errorf("milvus ef parameters must be positive"))
	}
	return errs
}
