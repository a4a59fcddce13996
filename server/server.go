package server

import (
	"context"
	"errors"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/middleware"
	"github.com/tokmz/posrt/pkg/audit"
	"github.com/tokmz/posrt/pkg/cache"
	"github.com/tokmz/posrt/pkg/logger"
	"github.com/tokmz/posrt/pkg/realtime"
)

// AuditReader 审计查询
type AuditReader interface {
	Recent(ctx context.Context, n int) ([]audit.BroadcastRecord, error)
}

// Server 把实时管理器挂到 Engine 上
type Server struct {
	cfg     *Config
	engine  *posrt.Engine
	manager *realtime.Manager
	loader  *cache.Loader
	audit   AuditReader
	limiter *middleware.RateLimiter
	log     logger.Logger
}

// Option 可选依赖
type Option func(*Server)

// WithIdempotencyCache 启用 Idempotency-Key 去重
func WithIdempotencyCache(c cache.Cache) Option {
	return func(s *Server) {
		if c != nil {
			s.loader = cache.NewLoader(c)
		}
	}
}

// WithAudit 启用审计查询接口
func WithAudit(r AuditReader) Option {
	return func(s *Server) { s.audit = r }
}

// WithLogger 设置日志器
func WithLogger(log logger.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New 注册中间件与路由，engine 不应已注册其他路由
func New(engine *posrt.Engine, manager *realtime.Manager, cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		manager: manager,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("module", "server"))

	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = middleware.NewRateLimiter(&middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			Logger:            s.log,
		})
	}

	s.register()
	return s
}

// WSPath 升级端点路径
func (s *Server) WSPath() string {
	return path.Join(s.cfg.Prefix, "ws")
}

func (s *Server) register() {
	wsPath := s.WSPath()

	s.engine.Use(middleware.Tracing(&middleware.TracingConfig{TracerName: "posrt.http"}))
	if len(s.cfg.AllowOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = s.cfg.AllowOrigins
		s.engine.Use(middleware.CORS(cors))
	}
	s.engine.Use(middleware.Timeout(&middleware.TimeoutConfig{
		Timeout:      s.cfg.RequestTimeout,
		Message:      "Request timeout",
		ExcludePaths: []string{wsPath},
	}))

	rg := s.engine.Group(s.cfg.Prefix)
	rg.GET("/ws", s.upgrade)
	rg.GET("/status", s.status)

	var broadcastMiddlewares []posrt.HandlerFunc
	if s.limiter != nil {
		broadcastMiddlewares = append(broadcastMiddlewares, s.limiter.Handler())
	}
	rg.POST("/broadcast", s.broadcast, broadcastMiddlewares...)

	admin := rg.Group("/sessions")
	posrt.Handle0[closeSessionReq](admin.DELETE, "/:id", s.closeSession)

	if s.audit != nil {
		posrt.Handle[auditQuery, auditList](rg.GET, "/audit", s.recentAudit)
	}

	s.engine.NoRoute(func(c *posrt.Context) {
		c.Error(http.StatusNotFound, "Not found")
	})
}

// Close 停止限流器清理协程
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// upgrade 升级为 WebSocket，失败响应由管理器写出
func (s *Server) upgrade(c *posrt.Context) {
	err := c.Upgrade(s.manager.HandleUpgrade)
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrUpgradeRequired):
		s.log.DebugContext(c.RequestContext(), "non-upgrade request on ws endpoint", zap.String("client_ip", c.ClientIP()))
	default:
		s.log.WarnContext(c.RequestContext(), "websocket upgrade failed", zap.String("client_ip", c.ClientIP()), zap.Error(err))
	}
}

// status 在线状态
func (s *Server) status(c *posrt.Context) {
	c.JSON(http.StatusOK, s.manager.Status())
}

// broadcast 管理端广播，任何失败统一返回 500
func (s *Server) broadcast(c *posrt.Context) {
	ctx := c.RequestContext()

	var req realtime.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.log.WarnContext(ctx, "invalid broadcast body", zap.Error(err))
		s.broadcastFailed(c)
		return
	}

	publish := func(ctx context.Context) (*realtime.BroadcastResult, error) {
		return s.manager.Publish(ctx, req, realtime.WithOrigin(realtime.OriginAdmin))
	}

	var (
		res      *realtime.BroadcastResult
		replayed bool
		err      error
	)
	if key := c.GetHeader("Idempotency-Key"); key != "" && s.loader != nil {
		res, replayed, err = cache.Load(ctx, s.loader, "broadcast:"+key, s.cfg.IdempotencyTTL, publish)
	} else {
		res, err = publish(ctx)
	}
	if err != nil || res == nil {
		s.log.ErrorContext(ctx, "admin broadcast failed", zap.String("type", req.Type), zap.Error(err))
		s.broadcastFailed(c)
		return
	}

	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	s.log.InfoContext(ctx, "admin broadcast",
		zap.String("type", req.Type),
		zap.Int("sent", res.SentCount),
		zap.Bool("replayed", replayed),
		targetField(req.TargetUserID),
	)
	c.JSON(http.StatusOK, res)
}

func (s *Server) broadcastFailed(c *posrt.Context) {
	c.Error(http.StatusInternalServerError, "Failed to broadcast message")
}

func targetField(target *string) zap.Field {
	if target == nil {
		return zap.Skip()
	}
	return zap.String("target_user_id", *target)
}
