package tracing

import (
	"io"
	"time"

	"github.com/tokmz/posrt/pkg/errors"
)

// 导出器类型
const (
	ExporterOTLP     = "otlp" // OTLP over HTTP
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(3401, 500, "链路追踪配置错误", nil)

// Config 链路追踪配置
type Config struct {
	// ServiceName 服务名称（必填）
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`

	// Enabled 为 false 时使用 noop 导出器
	Enabled bool `mapstructure:"enabled"`

	// Exporter 导出器：otlp / otlp-grpc / stdout / noop
	Exporter string `mapstructure:"exporter"`
	// Endpoint Collector 地址，如 "otel-collector:4318"
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	Insecure bool              `mapstructure:"insecure"`
	// CAFile 自签 Collector 证书，Insecure 为 true 时忽略
	CAFile string `mapstructure:"ca_file"`

	// Sampler 采样：always / never / ratio / parent_based
	Sampler      string  `mapstructure:"sampler"`
	SamplingRate float64 `mapstructure:"sampling_rate"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`

	// Writer stdout 导出器的输出目标，默认 os.Stdout
	Writer io.Writer `mapstructure:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "posrt",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		Enabled:            true,
		Exporter:           ExporterStdout,
		Sampler:            "parent_based",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 校验配置并补齐零值
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage("sampling rate must be between 0.0 and 1.0")
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	case "":
		c.Exporter = ExporterNoop
	default:
		return ErrInvalidConfig.WithMessage("invalid exporter type: " + c.Exporter)
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MaxExportBatchSize <= 0 {
		c.MaxExportBatchSize = 512
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 2048
	}
	return nil
}
