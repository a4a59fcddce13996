package posrt

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/posrt/pkg/logger"
)

// ServerConfig HTTP 监听配置，可直接从配置文件解码
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// WriteTimeout 只作用于普通请求，升级后的连接由 realtime 自行设置写超时
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// merge 用 o 中的非零字段覆盖 s
func (s *ServerConfig) merge(o ServerConfig) {
	if o.Addr != "" {
		s.Addr = o.Addr
	}
	if o.ReadTimeout > 0 {
		s.ReadTimeout = o.ReadTimeout
	}
	if o.ReadHeaderTimeout > 0 {
		s.ReadHeaderTimeout = o.ReadHeaderTimeout
	}
	if o.WriteTimeout > 0 {
		s.WriteTimeout = o.WriteTimeout
	}
	if o.IdleTimeout > 0 {
		s.IdleTimeout = o.IdleTimeout
	}
	if o.MaxHeaderBytes > 0 {
		s.MaxHeaderBytes = o.MaxHeaderBytes
	}
}

// Config 引擎配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	Server ServerConfig

	// ShutdownTimeout 优雅关机的最长等待时间
	ShutdownTimeout time.Duration

	TrustedProxies []string

	// Logger 引擎日志（Recovery、访问日志、关机日志）
	Logger logger.Logger

	// Banner 启动时是否打印 banner 和路由表
	Banner bool

	beforeShutdown []func(ctx context.Context)
	afterShutdown  []func()
}

// Option 配置选项函数
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Mode: gin.DebugMode,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		ShutdownTimeout: 10 * time.Second,
		Logger:          logger.NewNop(),
		Banner:          true,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		if mode != "" {
			c.Mode = mode
		}
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithServer 合并监听配置，零值字段保留默认值
func WithServer(server ServerConfig) Option {
	return func(c *Config) {
		c.Server.merge(server)
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ShutdownTimeout = timeout
		}
	}
}

// WithBeforeShutdown 追加关机前回调，在 HTTP 服务停止前按注册顺序执行
func WithBeforeShutdown(fn func(ctx context.Context)) Option {
	return func(c *Config) {
		c.beforeShutdown = append(c.beforeShutdown, fn)
	}
}

// WithAfterShutdown 追加关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.afterShutdown = append(c.afterShutdown, fn)
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithLogger 设置引擎日志
func WithLogger(log logger.Logger) Option {
	return func(c *Config) {
		if log != nil {
			c.Logger = log
		}
	}
}

// WithBanner 设置是否打印 banner
func WithBanner(enable bool) Option {
	return func(c *Config) {
		c.Banner = enable
	}
}
