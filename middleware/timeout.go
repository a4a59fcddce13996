package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tokmz/posrt"
)

// TimeoutConfig 超时中间件配置
type TimeoutConfig struct {
	// Timeout 请求超时时间（默认 30 秒）
	Timeout time.Duration

	// Message 超时响应消息
	Message string

	// ExcludePaths 排除的路径（WebSocket 升级端点必须排除）
	ExcludePaths []string
}

func defaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Timeout: 30 * time.Second,
		Message: "Request timeout",
	}
}

// Timeout 创建超时中间件
// 向请求注入带截止时间的 context，handler 返回后若已超时且尚未写响应则返回 408
func Timeout(cfgs ...*TimeoutConfig) posrt.HandlerFunc {
	cfg := defaultTimeoutConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	skip := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		skip[p] = struct{}{}
	}

	return func(c *posrt.Context) {
		if _, ok := skip[c.Request().URL.Path]; ok {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.Timeout)
		defer cancel()
		c.SetRequestContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer().Written() {
			c.AbortWithError(http.StatusRequestTimeout, cfg.Message)
		}
	}
}
