package notify

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig 重试配置
//
// 仅在携带 Idempotency-Key 时重试才不会重复广播
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`  // 最大重试次数（默认 3）
	InitialDelay time.Duration `mapstructure:"initial_delay"` // 初始退避（默认 100ms）
	MaxDelay     time.Duration `mapstructure:"max_delay"`     // 最大退避（默认 5s）
	Multiplier   float64       `mapstructure:"multiplier"`    // 退避倍数（默认 2.0）

	RetryIf func(statusCode int, err error) bool `mapstructure:"-"`
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		RetryIf:      defaultRetryIf,
	}
}

// defaultRetryIf 网络错误或 5xx 重试
func defaultRetryIf(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode >= http.StatusInternalServerError
}

// backOff 指数退避，±25% 抖动
func (rc *RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.MaxInterval = rc.MaxDelay
	b.Multiplier = rc.Multiplier
	b.RandomizationFactor = 0.25
	return b
}

func (rc *RetryConfig) normalize() {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = 100 * time.Millisecond
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 5 * time.Second
	}
	if rc.Multiplier <= 0 {
		rc.Multiplier = 2.0
	}
	if rc.RetryIf == nil {
		rc.RetryIf = defaultRetryIf
	}
}
