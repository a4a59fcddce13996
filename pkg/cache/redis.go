package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis 缓存，单机/集群/哨兵统一使用 UniversalClient
type redisCache struct {
	client     redis.UniversalClient
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

func newRedisCache(cfg *Config) (Cache, error) {
	client := newRedisClient(cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrCacheConnection.WithError(err)
	}

	return NewRedisFromClient(client, cfg), nil
}

// NewRedisFromClient 使用已有客户端创建缓存，cfg 仅取前缀、TTL 与序列化器
func NewRedisFromClient(client redis.UniversalClient, cfg *Config) Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = JSONSerializer{}
	}
	return &redisCache{
		client:     client,
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

func newRedisClient(r *RedisConfig) redis.UniversalClient {
	switch r.Mode {
	case RedisCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.Addrs,
			Username:     r.Username,
			Password:     r.Password,
			PoolSize:     r.PoolSize,
			MinIdleConns: r.MinIdleConns,
			MaxRetries:   r.MaxRetries,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
		})
	case RedisSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    r.MasterName,
			SentinelAddrs: r.Addrs,
			Username:      r.Username,
			Password:      r.Password,
			DB:            r.DB,
			PoolSize:      r.PoolSize,
			MinIdleConns:  r.MinIdleConns,
			MaxRetries:    r.MaxRetries,
			DialTimeout:   r.DialTimeout,
			ReadTimeout:   r.ReadTimeout,
			WriteTimeout:  r.WriteTimeout,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:         r.Addr,
			Username:     r.Username,
			Password:     r.Password,
			DB:           r.DB,
			PoolSize:     r.PoolSize,
			MinIdleConns: r.MinIdleConns,
			MaxRetries:   r.MaxRetries,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
		})
	}
}

func (r *redisCache) key(k string) string { return r.keyPrefix + k }

func (r *redisCache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return r.defaultTTL
	}
	return ttl
}

// Get 获取缓存
func (r *redisCache) Get(ctx context.Context, key string, value any) error {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheNotFound
	}
	if err != nil {
		return ErrCacheOperation.WithError(err)
	}
	if err := r.serializer.Unmarshal(data, value); err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	return nil
}

// Set 设置缓存
func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := r.serializer.Marshal(value)
	if err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl(ttl)).Err(); err != nil {
		return ErrCacheOperation.WithError(err)
	}
	return nil
}

// SetNX 使用 SET NX
func (r *redisCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := r.serializer.Marshal(value)
	if err != nil {
		return false, ErrCacheSerialization.WithError(err)
	}
	ok, err := r.client.SetNX(ctx, r.key(key), data, r.ttl(ttl)).Result()
	if err != nil {
		return false, ErrCacheOperation.WithError(err)
	}
	return ok, nil
}

// Delete 删除缓存
func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return ErrCacheOperation.WithError(err)
	}
	return nil
}

// Exists 检查键是否存在
func (r *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, ErrCacheOperation.WithError(err)
	}
	return n > 0, nil
}

// TTL 剩余生存时间，键不存在返回 ErrCacheNotFound
func (r *redisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, ErrCacheOperation.WithError(err)
	}
	// -2 键不存在，-1 永不过期
	if d == -2 {
		return 0, ErrCacheNotFound
	}
	return d, nil
}

// Ping 检查连接
func (r *redisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return ErrCacheConnection.WithError(err)
	}
	return nil
}

// Close 关闭连接
func (r *redisCache) Close() error {
	return r.client.Close()
}
