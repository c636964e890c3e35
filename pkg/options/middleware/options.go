// Package middleware provides middleware configuration options.
package middleware

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 中间件名称常量。
const (
	MiddlewareRecovery  = "recovery"
	MiddlewareRequestID = "request-id"
	MiddlewareLogger    = "logger"
	MiddlewareTracing   = "tracing"
	MiddlewareCORS      = "cors"
	MiddlewareBodyLimit = "body-limit"
	MiddlewareTimeout   = "timeout"
)

// knownMiddleware 全部可用中间件，也是默认的应用顺序。
var knownMiddleware = []string{
	MiddlewareRecovery,
	MiddlewareRequestID,
	MiddlewareLogger,
	MiddlewareTracing,
	MiddlewareCORS,
	MiddlewareBodyLimit,
	MiddlewareTimeout,
}

// Options 中间件配置。Middleware 决定启用哪些中间件以及应用顺序。
type Options struct {
	// Middleware 启用的中间件，按顺序应用。
	Middleware []string `json:"middleware" mapstructure:"middleware"`

	Recovery  *RecoveryOptions  `json:"recovery" mapstructure:"recovery"`
	RequestID *RequestIDOptions `json:"request-id" mapstructure:"request-id"`
	Logger    *LoggerOptions    `json:"logger" mapstructure:"logger"`
	CORS      *CORSOptions      `json:"cors" mapstructure:"cors"`
	BodyLimit *BodyLimitOptions `json:"body-limit" mapstructure:"body-limit"`
	Timeout   *TimeoutOptions   `json:"timeout" mapstructure:"timeout"`
}

// NewOptions 创建默认中间件选项。默认启用 recovery、request-id、logger、tracing、body-limit。
func NewOptions() *Options {
	return &Options{
		Middleware: []string{
			MiddlewareRecovery,
			MiddlewareRequestID,
			MiddlewareLogger,
			MiddlewareTracing,
			MiddlewareBodyLimit,
		},
		Recovery:  NewRecoveryOptions(),
		RequestID: NewRequestIDOptions(),
		Logger:    NewLoggerOptions(),
		CORS:      NewCORSOptions(),
		BodyLimit: NewBodyLimitOptions(),
		Timeout:   NewTimeoutOptions(),
	}
}

// IsEnabled 判断中间件是否启用。
func (o *Options) IsEnabled(name string) bool {
	return slices.Contains(o.Middleware, name)
}

// Enable 启用中间件，已启用时不变。
func (o *Options) Enable(name string) {
	if !o.IsEnabled(name) {
		o.Middleware = append(o.Middleware, name)
	}
}

// AddFlags adds flags for middleware options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "middleware."
	fs.StringSliceVar(&o.Middleware, p+"enabled", o.Middleware, fmt.Sprintf("Middleware applied in order, from %v.", knownMiddleware))
	o.Recovery.AddFlags(fs, p)
	o.RequestID.AddFlags(fs, p)
	o.Logger.AddFlags(fs, p)
	o.CORS.AddFlags(fs, p)
	o.BodyLimit.AddFlags(fs, p)
	o.Timeout.AddFlags(fs, p)
}

// Complete 补全缺失的子配置。
func (o *Options) Complete() error {
	if o.Recovery == nil {
		o.Recovery = NewRecoveryOptions()
	}
	if o.RequestID == nil {
		o.RequestID = NewRequestIDOptions()
	}
	if o.Logger == nil {
		o.Logger = NewLoggerOptions()
	}
	if o.CORS == nil {
		o.CORS = NewCORSOptions()
	}
	if o.BodyLimit == nil {
		o.BodyLimit = NewBodyLimitOptions()
	}
	if o.Timeout == nil {
		o.Timeout = NewTimeoutOptions()
	}
	return nil
}

// Validate validates the middleware options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	for _, name := range o.Middleware {
		if !slices.Contains(knownMiddleware, name) {
			errs = append(errs, fmt.Errorf("middleware.enabled: unknown middleware %q", name))
		}
	}
	if o.IsEnabled(MiddlewareCORS) {
		errs = append(errs, o.CORS.Validate()...)
	}
	if o.IsEnabled(MiddlewareBodyLimit) {
		errs = append(errs, o.BodyLimit.Validate()...)
	}
	if o.IsEnabled(MiddlewareTimeout) {
		errs = append(errs, o.Timeout.Validate()...)
	}
	return errs
}
