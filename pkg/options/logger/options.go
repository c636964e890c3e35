// Package logger 将 kart-io/logger 的配置接入命令行与配置文件。
package logger

import (
	"strings"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// Options 内嵌 option.LogOption。
// 标志名沿用 LogOption 的 mapstructure 键（下划线风格），配置文件与标志指向同一字段。
type Options struct {
	*option.LogOption `mapstructure:",squash"`
}

// NewOptions 返回 docqa 的默认日志配置：slog 引擎，JSON 输出到 stdout。
func NewOptions() *Options {
	return &Options{LogOption: option.DefaultLogOption()}
}

// AddFlags 注册 log.* 标志。
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	if o.OTLP == nil {
		o.OTLP = &option.OTLPOption{Protocol: "grpc"}
	}
	if o.Rotation == nil {
		o.Rotation = &option.RotationOption{}
	}

	fs.StringVar(&o.Engine, "log.engine", o.Engine, "Logging engine: zap or slog.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level: DEBUG, INFO, WARN, ERROR or FATAL.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Output format: json or console.")
	fs.StringSliceVar(&o.OutputPaths, "log.output_paths", o.OutputPaths, "Log destinations; stdout, stderr or file paths.")
	fs.BoolVar(&o.Development, "log.development", o.Development, "Human friendly development output.")
	fs.BoolVar(&o.DisableCaller, "log.disable_caller", o.DisableCaller, "Omit the caller location.")
	fs.BoolVar(&o.DisableStacktrace, "log.disable_stacktrace", o.DisableStacktrace, "Omit stack traces on errors.")

	fs.StringVar(&o.OTLPEndpoint, "log.otlp_endpoint", o.OTLPEndpoint, "Ship logs to this OTLP collector; enables OTLP export.")
	fs.StringVar(&o.OTLP.Protocol, "log.otlp.protocol", o.OTLP.Protocol, "OTLP protocol: grpc or http.")
	fs.DurationVar(&o.OTLP.Timeout, "log.otlp.timeout", o.OTLP.Timeout, "OTLP export timeout.")

	fs.IntVar(&o.Rotation.MaxSize, "log.rotation.max_size", o.Rotation.MaxSize, "Rotate file outputs after this many MB.")
	fs.IntVar(&o.Rotation.MaxAge, "log.rotation.max_age", o.Rotation.MaxAge, "Days to keep rotated files.")
	fs.IntVar(&o.Rotation.MaxBackups, "log.rotation.max_backups", o.Rotation.MaxBackups, "Rotated files to keep.")
	fs.BoolVar(&o.Rotation.Compress, "log.rotation.compress", o.Rotation.Compress, "Gzip rotated files.")
}

// Complete 规范化日志级别的大小写。
func (o *Options) Complete() error {
	o.Level = strings.ToUpper(strings.TrimSpace(o.Level))
	return nil
}

// Validate 交由 LogOption 校验级别与轮转配置。
func (o *Options) Validate() error {
	return o.LogOption.Validate()
}

// Init 按当前配置创建日志器并设为全局日志器。
func (o *Options) Init() error {
	log, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
