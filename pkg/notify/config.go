package notify

import (
	"net/http"
	"time"

	"github.com/tokmz/posrt/pkg/logger"
)

// Config 广播客户端配置
type Config struct {
	BaseURL string            `mapstructure:"base_url"` // 服务地址，如 http://posrt:8080
	Prefix  string            `mapstructure:"prefix"`   // 路由前缀（默认 /realtime）
	Timeout time.Duration     `mapstructure:"timeout"`  // 单次请求超时（默认 5s）
	Headers map[string]string `mapstructure:"headers"`  // 额外请求头
	Retry   *RetryConfig      `mapstructure:"retry"`    // 重试配置（nil 不重试）
	Tracing bool              `mapstructure:"tracing"`  // 创建客户端 span

	Logger    logger.Logger     `mapstructure:"-"`
	Transport http.RoundTripper `mapstructure:"-"` // 自定义 Transport
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Prefix:  "/realtime",
		Timeout: 5 * time.Second,
		Headers: make(map[string]string),
	}
}

// Option 配置选项函数
type Option func(*Config)

// WithBaseURL 设置服务地址
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithPrefix 设置路由前缀
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// WithTimeout 设置超时
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHeader 设置请求头
func WithHeader(key, value string) Option {
	return func(c *Config) { c.Headers[key] = value }
}

// WithRetry 设置重试配置
func WithRetry(cfg *RetryConfig) Option {
	return func(c *Config) { c.Retry = cfg }
}

// WithTracing 启用客户端 span
func WithTracing(enable bool) Option {
	return func(c *Config) { c.Tracing = enable }
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTransport 设置自定义 Transport
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}
