package server

import "time"

// Config 实时路由配置
type Config struct {
	// Prefix 路由前缀（默认 /realtime）
	Prefix string `mapstructure:"prefix"`

	// IdempotencyTTL Idempotency-Key 结果保留时间（默认 10 分钟）
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`

	// RequestTimeout 非升级请求超时（默认 30s）
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// AllowOrigins 管理接口 CORS 白名单，空表示不开启 CORS
	AllowOrigins []string `mapstructure:"allow_origins"`

	// RateLimit 管理端广播限流
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 限流配置，RequestsPerSecond <= 0 时关闭
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Prefix:         "/realtime",
		IdempotencyTTL: 10 * time.Minute,
		RequestTimeout: 30 * time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = "/realtime"
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 10 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}
}
