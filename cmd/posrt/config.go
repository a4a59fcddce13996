package main

import (
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/pkg/cache"
	"github.com/tokmz/posrt/pkg/config"
	"github.com/tokmz/posrt/pkg/ingest"
	"github.com/tokmz/posrt/pkg/logger"
	"github.com/tokmz/posrt/pkg/orm"
	"github.com/tokmz/posrt/pkg/realtime"
	"github.com/tokmz/posrt/pkg/tracing"
	"github.com/tokmz/posrt/server"
)

// AppConfig 进程配置，缺省的可选段（cache、database、ingest.*）表示不启用
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Cache    *cache.Config  `mapstructure:"cache"`
	Database *orm.Config    `mapstructure:"database"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	posrt.ServerConfig `mapstructure:",squash"`

	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	Banner          bool          `mapstructure:"banner"`
	Routes          server.Config `mapstructure:"routes"`
}

// RealtimeConfig 连接管理配置
type RealtimeConfig struct {
	MaxConnections    int           `mapstructure:"max_connections"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	BroadcastWorkers  int           `mapstructure:"broadcast_workers"`
	EventWorkers      int           `mapstructure:"event_workers"`
	EventQueueSize    int           `mapstructure:"event_queue_size"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AllowAllOrigins   bool          `mapstructure:"allow_all_origins"`
}

// options 转换为 realtime.Option，零值保留默认
func (r RealtimeConfig) options() []realtime.Option {
	var opts []realtime.Option
	if r.MaxConnections > 0 {
		opts = append(opts, realtime.WithMaxConnections(r.MaxConnections))
	}
	if r.SendQueueSize > 0 {
		opts = append(opts, realtime.WithSendQueueSize(r.SendQueueSize))
	}
	if r.MaxMessageSize > 0 {
		opts = append(opts, realtime.WithMessageSizeLimit(r.MaxMessageSize))
	}
	if r.WriteWait > 0 {
		opts = append(opts, realtime.WithWriteWait(r.WriteWait))
	}
	if r.HeartbeatInterval > 0 && r.HeartbeatTimeout > 0 {
		opts = append(opts, realtime.WithHeartbeat(r.HeartbeatInterval, r.HeartbeatTimeout))
	}
	if r.BroadcastWorkers > 0 {
		opts = append(opts, realtime.WithBroadcastWorkers(r.BroadcastWorkers))
	}
	if r.EventWorkers > 0 && r.EventQueueSize > 0 {
		opts = append(opts, realtime.WithEventWorkers(r.EventWorkers, r.EventQueueSize))
	}
	switch {
	case r.AllowAllOrigins:
		opts = append(opts, realtime.WithAllowAllOrigins())
	case len(r.AllowedOrigins) > 0:
		opts = append(opts, realtime.WithCheckOriginWhitelist(r.AllowedOrigins))
	}
	return opts
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	// Service 写入每条日志的 service 字段
	Service string `mapstructure:"service"`
	// Sampling 开启后同一秒内同样的日志前 100 条之后每 100 条记 1 条
	Sampling bool `mapstructure:"sampling"`
}

// build 创建 Logger，配置了 file 时按 lumberjack 轮转并同时输出到控制台
func (l LogConfig) build() (logger.Logger, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(l.Format)),
		logger.WithConsoleOutput(),
		logger.WithField("service", l.Service),
	}
	if l.Sampling {
		opts = append(opts, logger.WithSampling(&logger.SamplingConfig{}))
	}
	if l.File != "" {
		opts = append(opts, logger.WithRotateOutput(&logger.RotateConfig{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxAge:     l.MaxAgeDays,
			MaxBackups: l.MaxBackups,
			Compress:   l.Compress,
		}))
	}
	return logger.NewWithOptions(opts...)
}

// AuditConfig 广播审计配置，需要 database 段
type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

// IngestConfig 消息队列接入
type IngestConfig struct {
	Kafka  *ingest.KafkaConfig  `mapstructure:"kafka"`
	AMQP   *ingest.AMQPConfig   `mapstructure:"amqp"`
	Dedupe *ingest.DedupeConfig `mapstructure:"dedupe"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                                  ":8080",
		"server.mode":                                  "release",
		"server.read_header_timeout":                   "5s",
		"server.shutdown_timeout":                      "15s",
		"server.banner":                                true,
		"server.routes.prefix":                         "/realtime",
		"server.routes.idempotency_ttl":                "10m",
		"server.routes.request_timeout":                "30s",
		"server.routes.rate_limit.requests_per_second": 10,
		"server.routes.rate_limit.burst":               20,
		"realtime.allow_all_origins":                   false,
		"log.level":                                    "info",
		"log.format":                                   "json",
		"log.service":                                  "posrt",
		"tracing.service_name":                         "posrt",
		"tracing.enabled":                              false,
		"tracing.exporter":                             tracing.ExporterNoop,
		"audit.retention":                              "720h",
		"audit.purge_schedule":                         "@every 1h",
	}
}

// loadConfig 读取配置；path 为空时在工作目录与 /etc/posrt 查找 posrt.yaml
func loadConfig(path string, opts ...config.Option) (*config.Config, *AppConfig, error) {
	base := []config.Option{config.WithDefaults(defaults())}
	if path != "" {
		base = append(base, config.WithConfigFile(path))
	} else {
		base = append(base,
			config.WithConfigName("posrt"),
			config.WithConfigType("yaml"),
			config.WithConfigPaths(".", "/etc/posrt"),
		)
	}

	c := config.New(append(base, opts...)...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	app, err := config.Bind[AppConfig](c)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, app, nil
}

// secretKeys 输出配置时需要遮盖的键
var secretKeys = []string{"password", "dsn", "url", "headers", "sources"}

// renderConfig 把生效配置渲染为 YAML，敏感值替换为 ******
func renderConfig(settings map[string]any) ([]byte, error) {
	return yaml.MarshalWithOptions(redact(settings), yaml.Indent(2))
}

func redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSecret(k) {
			out[k] = "******"
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			v = redact(sub)
		}
		out[k] = v
	}
	return out
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
