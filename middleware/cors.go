package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tokmz/posrt"
)

// CORSConfig 跨域配置（管理端浏览器控制台调用 /broadcast、/status 时使用）
type CORSConfig struct {
	// AllowOrigins 允许的源，"*" 表示全部；支持 "https://*.shop.example" 通配
	AllowOrigins []string

	AllowMethods []string
	AllowHeaders []string

	// AllowCredentials 为 true 时 AllowOrigins 不能为 ["*"]
	AllowCredentials bool

	// MaxAge 预检缓存时间（默认 12 小时）
	MaxAge time.Duration
}

// DefaultCORSConfig 默认配置
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "Traceparent"},
		MaxAge:       12 * time.Hour,
	}
}

// originMatcher 源匹配
type originMatcher struct {
	any       bool
	exact     map[string]struct{}
	wildcards [][2]string
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{exact: make(map[string]struct{})}
	for _, o := range origins {
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "*"):
			prefix, suffix, _ := strings.Cut(o, "*")
			m.wildcards = append(m.wildcards, [2]string{prefix, suffix})
		default:
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m *originMatcher) match(origin string) bool {
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcards {
		if len(origin) > len(w[0])+len(w[1]) && strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) {
			return true
		}
	}
	return false
}

// CORS 创建跨域中间件
func CORS(cfgs ...*CORSConfig) posrt.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	matcher := newOriginMatcher(cfg.AllowOrigins)
	if cfg.AllowCredentials && matcher.any {
		panic("posrt/middleware: CORS AllowCredentials cannot be used with AllowOrigins [\"*\"]")
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(c *posrt.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !matcher.match(origin) {
			c.Next()
			return
		}

		if matcher.any {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request().Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
