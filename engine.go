package posrt

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Engine 包装 gin.Engine，提供统一的路由、响应与优雅关机
type Engine struct {
	config *Config
	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	// gin.SetMode 是全局操作，建议进程内只创建一个 Engine
	if gin.Mode() == gin.DebugMode || config.Mode != gin.DebugMode {
		gin.SetMode(config.Mode)
	}

	// 静默 Gin 默认输出，由 posrt 自行打印
	silenceGin()

	ginEngine := gin.New()
	ginEngine.Use(wrap(Recovery(config.Logger)))

	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("设置信任代理失败", zap.Error(err))
		}
	}

	return &Engine{
		engine: ginEngine,
		config: config,
	}
}

// Default 创建一个带有访问日志中间件的 Engine
func Default(opts ...Option) *Engine {
	e := New(opts...)
	e.engine.Use(wrap(Logger(e.config.Logger)))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(WrapAll(middlewares...)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group: e.engine.Group(path, WrapAll(middlewares...)...),
	}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{
		group: &e.engine.RouterGroup,
	}
}

// NoRoute 设置未匹配路由的处理函数
func (e *Engine) NoRoute(handlers ...HandlerFunc) {
	e.engine.NoRoute(WrapAll(handlers...)...)
}

// Handler 返回 http.Handler（用于 httptest）
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Run 启动 HTTP 服务器，收到 SIGINT/SIGTERM 后优雅关机
func (e *Engine) Run(addr ...string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return e.RunContext(ctx, addr...)
}

// RunContext 启动 HTTP 服务器，ctx 结束后优雅关机
func (e *Engine) RunContext(ctx context.Context, addr ...string) error {
	address := e.config.Server.Addr
	if len(addr) > 0 && addr[0] != "" {
		address = addr[0]
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           e.engine,
		ReadTimeout:       e.config.Server.ReadTimeout,
		ReadHeaderTimeout: e.config.Server.ReadHeaderTimeout,
		WriteTimeout:      e.config.Server.WriteTimeout,
		IdleTimeout:       e.config.Server.IdleTimeout,
		MaxHeaderBytes:    e.config.Server.MaxHeaderBytes,
	}
	e.mu.Lock()
	e.server = srv
	e.addr = ln.Addr()
	e.mu.Unlock()

	if e.config.Banner {
		e.printBanner(address)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		e.config.Logger.Info("正在关闭服务器...")
	}

	return e.gracefulShutdown()
}

// gracefulShutdown 执行优雅关机流程
func (e *Engine) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.config.Logger.Error("服务器强制关闭", zap.Error(err))
		return err
	}

	e.config.Logger.Info("服务器已退出")
	return nil
}

// Shutdown 手动关闭服务器
// beforeShutdown 回调在停止接收请求前执行（关闭实时连接等）
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	srv := e.server
	e.server = nil
	e.mu.Unlock()
	if srv == nil {
		return nil
	}

	for _, fn := range e.config.beforeShutdown {
		fn(ctx)
	}

	err := srv.Shutdown(ctx)

	for _, fn := range e.config.afterShutdown {
		fn()
	}

	return err
}

// Addr 返回实际监听地址，未启动时为 nil
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}
