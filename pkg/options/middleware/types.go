package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/pflag"
)

// PathMatcher 跳过路径配置。
type PathMatcher struct {
	SkipPaths        []string `json:"skip-paths" mapstructure:"skip-paths"`
	SkipPathPrefixes []string `json:"skip-path-prefixes" mapstructure:"skip-path-prefixes"`
}

// RecoveryOptions defines recovery middleware options.
type RecoveryOptions struct {
	// EnableStackTrace 在错误响应中返回堆栈，生产环境强制关闭。
	EnableStackTrace bool `json:"enable-stack-trace" mapstructure:"enable-stack-trace"`
}

// NewRecoveryOptions creates default recovery options.
func NewRecoveryOptions() *RecoveryOptions {
	return &RecoveryOptions{}
}

// AddFlags adds flags for recovery options.
func (o *RecoveryOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.BoolVar(&o.EnableStackTrace, prefix+"recovery.enable-stack-trace", o.EnableStackTrace, "Return stack traces in panic responses (never in production).")
}

// RequestIDOptions defines request id middleware options.
type RequestIDOptions struct {
	Header string `json:"header" mapstructure:"header"`
}

// NewRequestIDOptions creates default request id options.
func NewRequestIDOptions() *RequestIDOptions {
	return &RequestIDOptions{Header: "X-Request-ID"}
}

// AddFlags adds flags for request id options.
func (o *RequestIDOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringVar(&o.Header, prefix+"request-id.header", o.Header, "Header carrying the request id.")
}

// LoggerOptions defines access log middleware options.
type LoggerOptions struct {
	PathMatcher `mapstructure:",squash"`
}

// NewLoggerOptions creates default logger options.
func NewLoggerOptions() *LoggerOptions {
	return &LoggerOptions{PathMatcher: PathMatcher{SkipPaths: []string{"/healthz", "/metrics"}}}
}

// AddFlags adds flags for logger options.
func (o *LoggerOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringSliceVar(&o.SkipPaths, prefix+"logger.skip-paths", o.SkipPaths, "Paths excluded from access logs.")
}

// CORSOptions defines CORS middleware options.
type CORSOptions struct {
	AllowOrigins     []string `json:"allow-origins" mapstructure:"allow-origins"`
	AllowMethods     []string `json:"allow-methods" mapstructure:"allow-methods"`
	AllowHeaders     []string `json:"allow-headers" mapstructure:"allow-headers"`
	ExposeHeaders    []string `json:"expose-headers" mapstructure:"expose-headers"`
	AllowCredentials bool     `json:"allow-credentials" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age" mapstructure:"max-age"`
}

// NewCORSOptions creates default CORS options.
func NewCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		MaxAge:       86400,
	}
}

// AddFlags adds flags for CORS options.
func (o *CORSOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.StringSliceVar(&o.AllowOrigins, prefix+"cors.allow-origins", o.AllowOrigins, "CORS allowed origins.")
	fs.StringSliceVar(&o.AllowMethods, prefix+"cors.allow-methods", o.AllowMethods, "CORS allowed methods.")
	fs.StringSliceVar(&o.AllowHeaders, prefix+"cors.allow-headers", o.AllowHeaders, "CORS allowed headers.")
	fs.StringSliceVar(&o.ExposeHeaders, prefix+"cors.expose-headers", o.ExposeHeaders, "CORS exposed headers.")
	fs.BoolVar(&o.AllowCredentials, prefix+"cors.allow-credentials", o.AllowCredentials, "CORS allow credentials.")
	fs.IntVar(&o.MaxAge, prefix+"cors.max-age", o.MaxAge, "CORS preflight max age in seconds.")
}

// Validate validates the CORS options.
func (o *CORSOptions) Validate() []error {
	if len(o.AllowOrigins) == 0 {
		return []error{errors.New("middleware.cors.allow-origins cannot be empty")}
	}
	for _, origin := range o.AllowOrigins {
		if origin == "*" && o.AllowCredentials {
			return []error{errors.New("middleware.cors: wildcard origin cannot be combined with allow-credentials")}
		}
	}
	return nil
}

// BodyLimitOptions defines request body limit options.
type BodyLimitOptions struct {
	// MaxSize 普通请求体上限（字节）。
	MaxSize int64 `json:"max-size" mapstructure:"max-size"`
	// UploadMaxSize 上传路径的请求体上限（字节）。
	UploadMaxSize int64 `json:"upload-max-size" mapstructure:"upload-max-size"`
	// UploadPaths 使用 UploadMaxSize 的路径。
	UploadPaths []string `json:"upload-paths" mapstructure:"upload-paths"`
}

// NewBodyLimitOptions creates default body limit options.
func NewBodyLimitOptions() *BodyLimitOptions {
	return &BodyLimitOptions{
		MaxSize:       1 << 20,
		UploadMaxSize: 64 << 20,
		UploadPaths:   []string{"/v1/ocr/process", "/v1/upload"},
	}
}

// AddFlags adds flags for body limit options.
func (o *BodyLimitOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.Int64Var(&o.MaxSize, prefix+"body-limit.max-size", o.MaxSize, "Maximum request body size in bytes.")
	fs.Int64Var(&o.UploadMaxSize, prefix+"body-limit.upload-max-size", o.UploadMaxSize, "Maximum body size in bytes for upload paths.")
	fs.StringSliceVar(&o.UploadPaths, prefix+"body-limit.upload-paths", o.UploadPaths, "Paths accepting file uploads.")
}

// Validate validates the body limit options.
func (o *BodyLimitOptions) Validate() []error {
	if o.MaxSize <= 0 || o.UploadMaxSize <= 0 {
		return []error{fmt.Errorf("middleware.body-limit sizes must be positive")}
	}
	return nil
}

// TimeoutOptions defines request timeout options.
type TimeoutOptions struct {
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	PathMatcher `mapstructure:",squash"`
}

// NewTimeoutOptions creates default timeout options. Ingestion runs are long and skipped.
func NewTimeoutOptions() *TimeoutOptions {
	return &TimeoutOptions{
		Timeout:     2 * time.Minute,
		PathMatcher: PathMatcher{SkipPaths: []string{"/v1/ingestion/pipeline"}},
	}
}

// AddFlags adds flags for timeout options.
func (o *TimeoutOptions) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.DurationVar(&o.Timeout, prefix+"timeout.timeout", o.Timeout, "Request processing timeout.")
	fs.StringSliceVar(&o.SkipPaths, prefix+"timeout.skip-paths", o.SkipPaths, "Paths without a processing timeout.")
}

// Validate validates the timeout options.
func (o *TimeoutOptions) Validate() []error {
	if o.Timeout <= 0 {
		return []error{fmt.Errorf("middleware.timeout.timeout must be positive")}
	}
	return nil
}
