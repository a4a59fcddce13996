package cache

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "posrt.cache"

// tracedCache 链路追踪装饰器，未命中不记为错误
type tracedCache struct {
	Cache
	tracer trace.Tracer
}

// NewTracing 为缓存操作创建 Client Span
func NewTracing(c Cache) Cache {
	return &tracedCache{Cache: c, tracer: otel.Tracer(tracerName)}
}

func (t *tracedCache) do(ctx context.Context, op, key string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, ErrCacheNotFound):
		span.SetAttributes(attribute.Bool("cache.hit", false))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (t *tracedCache) Get(ctx context.Context, key string, value any) error {
	return t.do(ctx, "Get", key, func(ctx context.Context) error {
		err := t.Cache.Get(ctx, key, value)
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
		}
		return err
	})
}

func (t *tracedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return t.do(ctx, "Set", key, func(ctx context.Context) error {
		return t.Cache.Set(ctx, key, value, ttl)
	})
}

func (t *tracedCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	var ok bool
	err := t.do(ctx, "SetNX", key, func(ctx context.Context) error {
		var err error
		ok, err = t.Cache.SetNX(ctx, key, value, ttl)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.set", ok))
		return err
	})
	return ok, err
}

func (t *tracedCache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := t.tracer.Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("cache.keys_count", len(keys))),
	)
	defer span.End()

	err := t.Cache.Delete(ctx, keys...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
