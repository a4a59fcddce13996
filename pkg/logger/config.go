package logger

import "go.uber.org/zap/zapcore"

// Config 日志配置
type Config struct {
	// 基础配置
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）

	// 输出配置
	Console bool          // 是否输出到控制台
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	// 采样配置（nil 则不采样）
	Sampling *SamplingConfig

	// 功能配置
	DisableCaller     bool // 关闭调用位置
	DisableStacktrace bool // 关闭 Error 及以上堆栈

	// 扩展配置
	EncoderConfig *zapcore.EncoderConfig // 自定义 Encoder 配置
	Hooks         []Hook                 // Hook 列表
	Fields        map[string]string      // 每条日志固定附带的字段，如 service、node
}

// RotateConfig 文件轮转配置（lumberjack）
type RotateConfig struct {
	Filename   string // 日志文件路径
	MaxSize    int    // 单文件最大大小（MB，默认 100）
	MaxAge     int    // 文件保留天数（默认 30）
	MaxBackups int    // 最多保留文件数（默认 10）
	Compress   bool   // 是否压缩
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Initial    int // 每秒前 N 条日志必定记录
	Thereafter int // 之后每 M 条记录 1 条
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if c.Rotate != nil {
		c.Rotate.setDefaults()
	}
	if c.Sampling != nil {
		c.Sampling.setDefaults()
	}
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}

// Option 配置选项函数
type Option func(*Config)

func WithLevel(level Level) Option {
	return func(c *Config) { c.Level = level }
}

func WithFormat(format Format) Option {
	return func(c *Config) { c.Format = format }
}

// WithConsoleOutput 启用控制台输出，可与文件输出并存
func WithConsoleOutput() Option {
	return func(c *Config) { c.Console = true }
}

// WithFileOutput 追加写入单个文件，不轮转
func WithFileOutput(filename string) Option {
	return func(c *Config) { c.File = filename }
}

// WithRotateOutput 按 lumberjack 轮转写文件
func WithRotateOutput(config *RotateConfig) Option {
	return func(c *Config) { c.Rotate = config }
}

// WithSampling 开启采样，广播风暴时压制重复日志
func WithSampling(config *SamplingConfig) Option {
	return func(c *Config) { c.Sampling = config }
}

func WithCaller(enable bool) Option {
	return func(c *Config) { c.DisableCaller = !enable }
}

func WithHook(hook Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, hook) }
}

// WithField 添加固定字段，空值忽略
func WithField(key, value string) Option {
	return func(c *Config) {
		if value == "" {
			return
		}
		if c.Fields == nil {
			c.Fields = make(map[string]string)
		}
		c.Fields[key] = value
	}
}
