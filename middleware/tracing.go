package middleware

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/posrt"
)

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	// TracerName Tracer 名称（默认 "posrt.http"）
	TracerName string

	// ExcludePaths 排除的路径（不追踪）
	ExcludePaths []string
}

// Tracing 创建 HTTP Server Span 中间件
// 提取上游 TraceContext，把 TraceID 写入 posrt.Context，响应头回写 traceparent
func Tracing(cfgs ...*TracingConfig) posrt.HandlerFunc {
	cfg := &TracingConfig{TracerName: "posrt.http"}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.TracerName == "" {
		cfg.TracerName = "posrt.http"
	}

	skip := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		skip[p] = struct{}{}
	}

	return func(c *posrt.Context) {
		req := c.Request()
		if _, ok := skip[req.URL.Path]; ok {
			c.Next()
			return
		}

		// 每次请求获取，Provider 可能晚于路由注册初始化
		tracer := otel.Tracer(cfg.TracerName)
		propagator := otel.GetTextMapPropagator()

		ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginalKey.String(req.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		}
		if full := c.FullPath(); full != "" {
			attrs = append(attrs, semconv.HTTPRouteKey.String(full))
		}

		ctx, span := tracer.Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.SetTraceID(span.SpanContext().TraceID().String())
		c.SetRequestContext(ctx)

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}

		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))
	}
}
