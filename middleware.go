package posrt

import (
	"errors"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
)

// LoggerConfig 日志中间件配置
type LoggerConfig struct {
	// Logger 日志实例（必填）
	Logger logger.Logger

	// SkipFunc 跳过日志的函数
	SkipFunc func(c *Context) bool

	// ExcludePaths 排除的路径（不记录日志）
	ExcludePaths []string
}

// Logger 创建访问日志中间件
// 记录请求方法、路径、客户端 IP、状态码、耗时，携带 trace_id；升级成功的请求记为 101
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	cfg := &LoggerConfig{Logger: log}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	skipMap := make(map[string]bool, len(cfg.ExcludePaths))
	for _, path := range cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *Context) {
		if (cfg.SkipFunc != nil && cfg.SkipFunc(c)) || skipMap[c.Request().URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request().URL.Path
		method := c.Request().Method

		c.Next()

		status := c.Writer().Status()
		if c.Hijacked() {
			status = http.StatusSwitchingProtocols
		}
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		ctx := c.RequestContext()
		switch {
		case status >= 500:
			cfg.Logger.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			cfg.Logger.WarnContext(ctx, "request", fields...)
		default:
			cfg.Logger.InfoContext(ctx, "request", fields...)
		}
	}
}

// Recovery 创建 panic 恢复中间件
// panic 时返回 500 {"error": "Internal Server Error"}，连接已被接管时只记录日志
func Recovery(log logger.Logger) HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}

	return func(c *Context) {
		defer func() {
			if err := recover(); err != nil {
				if isBrokenPipe(err) {
					log.Warn("broken pipe",
						zap.Any("error", err),
						zap.String("path", c.Request().URL.Path),
					)
					c.Abort()
					return
				}

				log.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("client_ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				)

				if c.Hijacked() {
					c.Abort()
					return
				}
				c.AbortWithError(http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		c.Next()
	}
}

// isBrokenPipe 检查是否为断开的连接错误
func isBrokenPipe(err any) bool {
	e, ok := err.(error)
	if !ok {
		return false
	}
	var ne *net.OpError
	if !errors.As(e, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
