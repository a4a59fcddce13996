package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/pkg/logger"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每秒补充的令牌数（默认 10）
	RequestsPerSecond float64

	// Burst 突发容量（默认 20）
	Burst int

	// KeyFunc 限流 key（默认客户端 IP）
	KeyFunc func(c *posrt.Context) string

	Logger logger.Logger

	// CleanupInterval 过期桶清理间隔（默认 10 分钟）
	CleanupInterval time.Duration

	// BucketExpiry 桶空闲多久后清理（默认 30 分钟）
	BucketExpiry time.Duration
}

func defaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		CleanupInterval:   10 * time.Minute,
		BucketExpiry:      30 * time.Minute,
	}
}

// bucket 单个 key 的令牌桶
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按 key 限流，每个 key 一个 rate.Limiter
type RateLimiter struct {
	cfg     *RateLimiterConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter 创建限流器并启动后台清理，调用方负责 Stop
func NewRateLimiter(cfgs ...*RateLimiterConfig) *RateLimiter {
	cfg := defaultRateLimiterConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *posrt.Context) string { return c.ClientIP() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = 30 * time.Minute
	}

	rl := &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow 消耗 key 对应的一个令牌
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Handler 返回限流中间件，超限时返回 429
func (rl *RateLimiter) Handler() posrt.HandlerFunc {
	return func(c *posrt.Context) {
		key := rl.cfg.KeyFunc(c)
		if !rl.Allow(key) {
			rl.cfg.Logger.WarnContext(c.RequestContext(), "rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request().URL.Path),
			)
			c.AbortWithError(http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}

// Stop 停止后台清理
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.cfg.BucketExpiry {
			delete(rl.buckets, key)
		}
	}
}
