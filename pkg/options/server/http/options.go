// Package http holds the listener and timeout settings of the API server.
package http

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the net/http server behind the gin engine.
type Options struct {
	Addr              string        `json:"addr" mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `json:"read-header-timeout" mapstructure:"read-header-timeout"`
	ReadTimeout       time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	// WriteTimeout of zero leaves responses unbounded; an ingestion run
	// holds its connection until the run finishes.
	WriteTimeout   time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	IdleTimeout    time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`
	MaxHeaderBytes int           `json:"max-header-bytes" mapstructure:"max-header-bytes"`
}

// NewOptions returns the defaults used by docqa.
func NewOptions() *Options {
	return &Options{
		Addr:              ":8100",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// AddFlags registers the http.* flags below the given prefixes.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "http."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "Bind address of the API server.")
	fs.DurationVar(&o.ReadHeaderTimeout, p+"read-header-timeout", o.ReadHeaderTimeout, "Time allowed to read request headers.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "Time allowed to read a whole request, uploads included.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "Time allowed to write a response. 0 disables the limit.")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "Keep-alive idle timeout.")
	fs.IntVar(&o.MaxHeaderBytes, p+"max-header-bytes", o.MaxHeaderBytes, "Maximum size of request headers.")
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr cannot be empty"))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout must be positive"))
	}
	if o.ReadHeaderTimeout < 0 || o.WriteTimeout < 0 || o.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("http timeouts cannot be negative"))
	}
	if o.MaxHeaderBytes < 0 {
		errs = append(errs, fmt.Errorf("http.max-header-bytes cannot be negative"))
	}
	return errs
}

// Complete fills a missing header timeout from the read timeout.
func (o *Options) Complete() error {
	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = o.ReadTimeout
	}
	return nil
}
