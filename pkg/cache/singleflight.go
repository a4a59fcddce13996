package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader 合并同一 key 的并发回源，结果写入缓存
// 缓存读写失败不影响回源结果
type Loader struct {
	cache Cache
	group singleflight.Group
}

// NewLoader 创建 Loader
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c}
}

// Cache 底层缓存
func (l *Loader) Cache() Cache {
	return l.cache
}

// Load 先查缓存，未命中时同一 key 只执行一次 fn；shared 表示结果来自缓存或其他并发调用
func Load[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fn func(context.Context) (T, error)) (result T, shared bool, err error) {
	if err := l.cache.Get(ctx, key, &result); err == nil {
		return result, true, nil
	}

	v, err, dup := l.group.Do(key, func() (any, error) {
		// 排队期间可能已被其他调用写入
		var cached T
		if err := l.cache.Get(ctx, key, &cached); err == nil {
			return cachedValue[T]{v: cached}, nil
		}
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(ctx, key, out, ttl)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}

	if c, ok := v.(cachedValue[T]); ok {
		return c.v, true, nil
	}
	out, _ := v.(T)
	return out, dup, nil
}

// Forget 让下一次 Load 重新回源
func (l *Loader) Forget(key string) {
	l.group.Forget(key)
}

type cachedValue[T any] struct{ v T }

// Remember 不合并并发的读穿缓存
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}
	result, err := fn()
	if err != nil {
		return result, err
	}
	_ = c.Set(ctx, key, result, ttl)
	return result, nil
}
