package cache

// New 创建缓存实例，Redis 驱动会先 Ping 确认连通
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Driver == DriverRedis {
		return newRedisCache(cfg)
	}
	return newMemoryCache(cfg), nil
}

// NewWithOptions 使用 Options 模式创建缓存实例
func NewWithOptions(opts ...Option) (Cache, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}
