package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 基于 go-cache 的进程内缓存
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

func newMemoryCache(cfg *Config) *memoryCache {
	return &memoryCache{
		cache:      gocache.New(cfg.DefaultTTL, cfg.Memory.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

func (m *memoryCache) key(k string) string { return m.keyPrefix + k }

func (m *memoryCache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return m.defaultTTL
	}
	return ttl
}

func (m *memoryCache) encode(value any) ([]byte, error) {
	data, err := m.serializer.Marshal(value)
	if err != nil {
		return nil, ErrCacheSerialization.WithError(err)
	}
	return data, nil
}

// Get 获取缓存
func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	raw, found := m.cache.Get(m.key(key))
	if !found {
		return ErrCacheNotFound
	}
	data, ok := raw.([]byte)
	if !ok {
		return ErrCacheSerialization.WithError(fmt.Errorf("unexpected type %T", raw))
	}
	if err := m.serializer.Unmarshal(data, value); err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	return nil
}

// Set 设置缓存
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := m.encode(value)
	if err != nil {
		return err
	}
	m.cache.Set(m.key(key), data, m.ttl(ttl))
	return nil
}

// SetNX go-cache 的 Add 在键存在时返回错误
func (m *memoryCache) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := m.encode(value)
	if err != nil {
		return false, err
	}
	return m.cache.Add(m.key(key), data, m.ttl(ttl)) == nil, nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.cache.Delete(m.key(k))
	}
	return nil
}

// Exists 检查键是否存在
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, found := m.cache.Get(m.key(key))
	return found, nil
}

// TTL 剩余生存时间，永不过期返回 -1
func (m *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, found := m.cache.GetWithExpiration(m.key(key))
	if !found {
		return 0, ErrCacheNotFound
	}
	if exp.IsZero() {
		return -1, nil
	}
	return time.Until(exp), nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

// Close 清空缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}
