package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/tokmz/posrt/pkg/logger"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "POSRT"

// Config 配置管理器，封装 viper 并提供热更新与保护模式
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string

	protected bool
	autoWatch bool
	watching  bool
	loaded    bool
	restoring atomic.Bool
	onChange  func(*Config)
	onError   func(error)
	snap      []byte

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer
	log            logger.Logger
}

// New 创建配置管理器
func New(opts ...Option) *Config {
	c := &Config{
		viper:          viper.New(),
		envPrefix:      DefaultEnvPrefix,
		envKeyReplacer: strings.NewReplacer(".", "_"),
		log:            logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取配置文件，按需保存快照并开启监控
func (c *Config) Load() error {
	c.mu.Lock()

	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}

	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
	}
	if c.envKeyReplacer != nil {
		c.viper.SetEnvKeyReplacer(c.envKeyReplacer)
	}
	c.viper.AutomaticEnv()

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
	} else {
		if c.configName != "" {
			c.viper.SetConfigName(c.configName)
		}
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		c.mu.Unlock()
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrConfigNotFound.WithError(err)
		}
		return ErrConfigReadFailed.WithError(err)
	}
	c.loaded = true

	var snapErr error
	if c.protected {
		snapErr = c.saveSnapshot()
	}
	if c.autoWatch {
		c.startWatch()
	}
	c.mu.Unlock()

	// 回调在锁外执行
	if snapErr != nil {
		c.reportError(snapErr)
	}
	return nil
}

// Bind 加载后将整个配置反序列化为 T
func Bind[T any](c *Config) (*T, error) {
	var out T
	if err := c.Unmarshal(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get 泛型获取配置值，类型不匹配时返回零值
func Get[T any](c *Config, key string) T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, _ := c.viper.Get(key).(T)
	return v
}

// GetString 获取字符串配置值
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// GetInt 获取整数配置值
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetInt(key)
}

// GetBool 获取布尔配置值
func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetBool(key)
}

// GetDuration 获取时间间隔配置值
func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetDuration(key)
}

// Set 覆盖配置值
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// IsSet 检查配置键是否存在
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.IsSet(key)
}

// Unmarshal 将配置反序列化到结构体（mapstructure 标签，支持 time.Duration）
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return ErrConfigNotLoaded
	}
	if err := c.viper.Unmarshal(rawVal); err != nil {
		return ErrConfigUnmarshal.WithError(err)
	}
	return nil
}

// UnmarshalKey 将指定 key 的配置反序列化到结构体
func (c *Config) UnmarshalKey(key string, rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return ErrConfigNotLoaded
	}
	if err := c.viper.UnmarshalKey(key, rawVal); err != nil {
		return ErrConfigUnmarshal.WithError(fmt.Errorf("key %q: %w", key, err))
	}
	return nil
}

// AllSettings 合并默认值、文件与环境变量后的完整配置
func (c *Config) AllSettings() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.AllSettings()
}

// ConfigFileUsed 返回实际加载的配置文件
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// Close 停止监控
func (c *Config) Close() {
	c.StopWatch()
}
