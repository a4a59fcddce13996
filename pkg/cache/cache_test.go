package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	perrors "github.com/tokmz/posrt/pkg/errors"
)

type broadcastResult struct {
	Success   bool `json:"success"`
	SentCount int  `json:"sentCount"`
}

func newMemory(t *testing.T) Cache {
	t.Helper()
	c, err := NewWithOptions(WithMemory(&MemoryConfig{CleanupInterval: time.Minute}), WithKeyPrefix("idem:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestMemoryCache 测试内存缓存基本操作
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := newMemory(t)

	want := broadcastResult{Success: true, SentCount: 3}
	require.NoError(t, c.Set(ctx, "k1", want, time.Minute))

	var got broadcastResult
	require.NoError(t, c.Get(ctx, "k1", &got))
	assert.Equal(t, want, got)

	ok, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := c.TTL(ctx, "k1")
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)

	require.NoError(t, c.Delete(ctx, "k1"))
	assert.True(t, perrors.Is(c.Get(ctx, "k1", &got), ErrCacheNotFound))
	_, err = c.TTL(ctx, "k1")
	assert.True(t, perrors.Is(err, ErrCacheNotFound))

	require.NoError(t, c.Ping(ctx))
}

// TestMemorySetNX 测试仅首次写入成功
func TestMemorySetNX(t *testing.T) {
	ctx := context.Background()
	c := newMemory(t)

	ok, err := c.SetNX(ctx, "claim", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "claim", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var v string
	require.NoError(t, c.Get(ctx, "claim", &v))
	assert.Equal(t, "a", v)
}

// TestMemoryExpiry 测试过期
func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := newMemory(t)

	require.NoError(t, c.Set(ctx, "short", 1, 20*time.Millisecond))
	assert.Eventually(t, func() bool {
		ok, _ := c.Exists(ctx, "short")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

// TestSerializationError 测试无法序列化的值
func TestSerializationError(t *testing.T) {
	c := newMemory(t)
	err := c.Set(context.Background(), "bad", make(chan int), 0)
	assert.True(t, perrors.Is(err, ErrCacheSerialization))
}

// TestValidate 测试配置校验
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"默认", DefaultConfig(), false},
		{"未知驱动", &Config{Driver: "memcached"}, true},
		{"redis 缺配置", &Config{Driver: DriverRedis}, true},
		{"redis 单机缺地址", &Config{Driver: DriverRedis, Redis: &RedisConfig{}}, true},
		{"redis 集群", &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: RedisCluster, Addrs: []string{"a:1"}}}, false},
		{"redis 哨兵缺主节点", &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: RedisSentinel, Addrs: []string{"a:1"}}}, true},
		{"redis 未知模式", &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: "ring", Addr: "a:1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.True(t, perrors.Is(err, ErrCacheInvalidConfig))
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, tt.cfg.Serializer)
		})
	}
}

// TestRedisUnreachable 测试 Redis 不可达时返回连接错误
func TestRedisUnreachable(t *testing.T) {
	rc := DefaultRedisConfig()
	rc.Addr = "127.0.0.1:1"
	rc.MaxRetries = -1
	rc.DialTimeout = 200 * time.Millisecond

	_, err := NewWithOptions(WithRedis(rc))
	assert.True(t, perrors.Is(err, ErrCacheConnection))
}

// TestLoad 测试并发回源只执行一次
func TestLoad(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(newMemory(t))

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (broadcastResult, error) {
		calls.Add(1)
		<-release
		return broadcastResult{Success: true, SentCount: 2}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]broadcastResult, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := Load(ctx, l, "key-1", time.Minute, fn)
			assert.NoError(t, err)
			results[i] = r
		}()
	}

	// 等待所有调用进入 singleflight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 2, r.SentCount)
	}

	// 之后命中缓存
	r, shared, err := Load(ctx, l, "key-1", time.Minute, fn)
	require.NoError(t, err)
	assert.True(t, shared)
	assert.Equal(t, 2, r.SentCount)
	assert.Equal(t, int32(1), calls.Load())
}

// TestLoadError 测试回源失败不写缓存
func TestLoadError(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(newMemory(t))

	boom := errors.New("broadcast failed")
	_, _, err := Load(ctx, l, "k", time.Minute, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	ok, _ := l.Cache().Exists(ctx, "k")
	assert.False(t, ok)
}

// TestRemember 测试读穿缓存
func TestRemember(t *testing.T) {
	ctx := context.Background()
	c := newMemory(t)

	calls := 0
	fn := func() (string, error) { calls++; return "v", nil }
	for range 3 {
		v, err := Remember(ctx, c, "r", time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 1, calls)
}

// TestTracing 测试追踪装饰器
func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	c := &tracedCache{Cache: newMemory(t), tracer: tp.Tracer(tracerName)}
	ctx := context.Background()

	var v int
	assert.Error(t, c.Get(ctx, "miss", &v))
	require.NoError(t, c.Set(ctx, "hit", 1, time.Minute))
	require.NoError(t, c.Get(ctx, "hit", &v))
	_, err := c.SetNX(ctx, "hit", 2, time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "hit"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 5)
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"cache.Get", "cache.Set", "cache.Get", "cache.SetNX", "cache.Delete"}, names)
}
