package cache

import (
	"time"
)

// DriverType 驱动类型
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory"
)

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置
type Config struct {
	Driver DriverType    `mapstructure:"driver"`
	Redis  *RedisConfig  `mapstructure:"redis"`
	Memory *MemoryConfig `mapstructure:"memory"`

	// KeyPrefix 键前缀，如 "posrt:idem:"
	KeyPrefix string `mapstructure:"key_prefix"`

	// DefaultTTL Set 传入 ttl 为 0 时使用
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	Serializer Serializer `mapstructure:"-"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Mode         RedisMode     `mapstructure:"mode"`
	Addr         string        `mapstructure:"addr"`  // 单机
	Addrs        []string      `mapstructure:"addrs"` // 集群/哨兵
	MasterName   string        `mapstructure:"master_name"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MemoryConfig 内存缓存配置
type MemoryConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultConfig 默认使用内存驱动
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		Memory:     &MemoryConfig{CleanupInterval: 5 * time.Minute},
		DefaultTTL: 10 * time.Minute,
		Serializer: JSONSerializer{},
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Mode:         RedisStandalone,
		Addr:         "localhost:6379",
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Option 配置选项
type Option func(*Config)

// WithRedis 使用 Redis 驱动
func WithRedis(cfg *RedisConfig) Option {
	return func(c *Config) {
		c.Driver = DriverRedis
		c.Redis = cfg
	}
}

// WithMemory 使用内存驱动
func WithMemory(cfg *MemoryConfig) Option {
	return func(c *Config) {
		c.Driver = DriverMemory
		c.Memory = cfg
	}
}

// WithKeyPrefix 设置键前缀
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithDefaultTTL 设置默认 TTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DefaultTTL = ttl
	}
}

// WithSerializer 设置序列化器
func WithSerializer(s Serializer) Option {
	return func(c *Config) {
		c.Serializer = s
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}

	switch c.Driver {
	case DriverMemory:
		if c.Memory == nil {
			c.Memory = &MemoryConfig{CleanupInterval: 5 * time.Minute}
		}
		return nil
	case DriverRedis:
		return c.validateRedis()
	default:
		return ErrCacheInvalidConfig.WithMessage("invalid driver type: " + string(c.Driver))
	}
}

func (c *Config) validateRedis() error {
	r := c.Redis
	if r == nil {
		return ErrCacheInvalidConfig.WithMessage("redis config is required")
	}
	switch r.Mode {
	case RedisStandalone, "":
		if r.Addr == "" {
			return ErrCacheInvalidConfig.WithMessage("redis addr is required for standalone mode")
		}
	case RedisCluster:
		if len(r.Addrs) == 0 {
			return ErrCacheInvalidConfig.WithMessage("redis cluster requires addrs")
		}
	case RedisSentinel:
		if len(r.Addrs) == 0 || r.MasterName == "" {
			return ErrCacheInvalidConfig.WithMessage("redis sentinel requires addrs and master name")
		}
	default:
		return ErrCacheInvalidConfig.WithMessage("invalid redis mode: " + string(r.Mode))
	}
	return nil
}
