package posrt

import (
	"bufio"
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/posrt/pkg/errors"
	"github.com/tokmz/posrt/pkg/logger"
)

// Context 包装 gin.Context，提供统一响应与请求上下文
type Context struct {
	ctx *gin.Context
}

// NewContext 创建新的上下文（用于测试）
func NewContext(c *gin.Context) *Context {
	return &Context{ctx: c}
}

// ============ Gin Context 访问方法 ============

// Request 返回底层的 *http.Request
func (c *Context) Request() *http.Request {
	return c.ctx.Request
}

// Writer 返回底层的 http.ResponseWriter
func (c *Context) Writer() gin.ResponseWriter {
	return c.ctx.Writer
}

// FullPath 获取路由模板路径（如 /sessions/:id）
func (c *Context) FullPath() string {
	return c.ctx.FullPath()
}

// Query 获取 URL 查询参数
func (c *Context) Query(key string) string {
	return c.ctx.Query(key)
}

// ShouldBind 绑定请求参数（不自动响应错误）
func (c *Context) ShouldBind(obj any) error {
	return c.ctx.ShouldBind(obj)
}

// ShouldBindJSON 绑定 JSON 请求体（不自动响应错误）
func (c *Context) ShouldBindJSON(obj any) error {
	return c.ctx.ShouldBindJSON(obj)
}

// ShouldBindQuery 绑定 URL 查询参数（不自动响应错误）
func (c *Context) ShouldBindQuery(obj any) error {
	return c.ctx.ShouldBindQuery(obj)
}

// ShouldBindUri 绑定路径参数（不自动响应错误）
func (c *Context) ShouldBindUri(obj any) error {
	return c.ctx.ShouldBindUri(obj)
}

// JSON 发送 JSON 响应
func (c *Context) JSON(code int, obj any) {
	c.ctx.JSON(code, obj)
}

// Set 设置上下文键值对
func (c *Context) Set(key string, value any) {
	c.ctx.Set(key, value)
}

// Get 获取上下文键值对
func (c *Context) Get(key string) (any, bool) {
	return c.ctx.Get(key)
}

// GetString 获取字符串类型的上下文值
func (c *Context) GetString(key string) string {
	return c.ctx.GetString(key)
}

// Next 执行下一个中间件或处理函数
func (c *Context) Next() {
	c.ctx.Next()
}

// Abort 中止请求处理
func (c *Context) Abort() {
	c.ctx.Abort()
}

// AbortWithStatus 中止请求并设置状态码
func (c *Context) AbortWithStatus(code int) {
	c.ctx.AbortWithStatus(code)
}

// ClientIP 获取客户端 IP
func (c *Context) ClientIP() string {
	return c.ctx.ClientIP()
}

// GetHeader 获取请求头
func (c *Context) GetHeader(key string) string {
	return c.ctx.GetHeader(key)
}

// Header 设置响应头
func (c *Context) Header(key, value string) {
	c.ctx.Header(key, value)
}

const (
	contextTraceIDKey  = "posrt.trace_id"
	contextHijackedKey = "posrt.hijacked"
)

// TraceID 返回 Tracing 中间件写入的 trace_id
func (c *Context) TraceID() string {
	return c.ctx.GetString(contextTraceIDKey)
}

// SetTraceID 记录当前请求的 trace_id，响应信封与日志都会带上
func (c *Context) SetTraceID(traceID string) {
	c.ctx.Set(contextTraceIDKey, traceID)
}

// Hijacked 连接是否已被接管（WebSocket 升级成功后为 true）
// 接管后不能再写 HTTP 响应
func (c *Context) Hijacked() bool {
	return c.ctx.GetBool(contextHijackedKey)
}

// Upgrade 交给 fn 处理协议升级，fn 返回后记录连接是否被接管
func (c *Context) Upgrade(fn func(w http.ResponseWriter, r *http.Request) error) error {
	w := &hijackTracker{ResponseWriter: c.ctx.Writer}
	err := fn(w, c.ctx.Request)
	if w.hijacked {
		c.ctx.Set(contextHijackedKey, true)
	}
	return err
}

// wrapBindError 包装绑定错误
func (c *Context) wrapBindError(err error) error {
	return errors.ErrBadRequest.WithError(err)
}

// ============ 响应方法 ============

// Success 成功响应
func (c *Context) Success(data any) {
	c.respond(http.StatusOK, okResponse(data))
}

// Nil 成功响应（无数据）
func (c *Context) Nil() {
	c.Success(nil)
}

// Error 实时接口的原始错误响应 {"error": message}，不使用统一响应结构
func (c *Context) Error(status int, message string) {
	c.ctx.JSON(status, ErrorBody{Error: message})
}

// AbortWithError 中止并返回 {"error": message}
func (c *Context) AbortWithError(status int, message string) {
	c.ctx.AbortWithStatusJSON(status, ErrorBody{Error: message})
}

// RespondError 错误响应，*errors.Error 使用其 HTTP 状态码
func (c *Context) RespondError(err error) {
	var bizErr *errors.Error
	if errors.As(err, &bizErr) {
		c.respond(bizErr.HttpCode, NewResponse(bizErr.Code, nil, bizErr.Message))
		return
	}

	// 未知错误不向调用方暴露细节
	c.respond(errors.ErrServer.HttpCode, NewResponse(errors.ErrServer.Code, nil, errors.ErrServer.Message))
}

// respond 统一响应处理（自动添加 TraceID）
func (c *Context) respond(statusCode int, resp *Response) {
	if traceID := c.TraceID(); traceID != "" {
		resp.TraceID = traceID
	}
	c.JSON(statusCode, resp)
}

// RequestContext 返回请求的 context.Context，带上 trace_id 供 logger.*Context 提取
func (c *Context) RequestContext() context.Context {
	ctx := c.ctx.Request.Context()
	if traceID := c.TraceID(); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}
	return ctx
}

// SetRequestContext 更新 Request 的 Context（用于中间件注入 SpanContext）
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}

// hijackTracker 记录 Hijack 是否成功
type hijackTracker struct {
	gin.ResponseWriter
	hijacked bool
}

func (w *hijackTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := w.ResponseWriter.Hijack()
	if err == nil {
		w.hijacked = true
	}
	return conn, rw, err
}
