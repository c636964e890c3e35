// Package ledger provides options for the ingestion ledger backend.
package ledger

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported backends.
const (
	BackendMongoDB = "mongodb"
	BackendMemory  = "memory"
)

// Options selects where ingestion jobs and documents are recorded.
type Options struct {
	// Backend is mongodb (durable) or memory (single process, lost on restart).
	Backend string `json:"backend" mapstructure:"backend"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{Backend: BackendMongoDB}
}

// AddFlags adds flags for ledger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"ledger.backend", o.Backend, "Ingestion ledger backend (mongodb, memory).")
}

// Validate validates the ledger options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Backend != BackendMongoDB && o.Backend != BackendMemory {
		return []error{fmt.Errorf("ledger.backend must be mongodb or memory, got %q", o.Backend)}
	}
	return nil
}

// Complete completes the ledger options.
func (o *Options) Complete() error {
	return nil
}

// UseMongo reports whether the MongoDB ledger is selected.
func (o *Options) UseMongo() bool {
	return o.Backend == BackendMongoDB
}
