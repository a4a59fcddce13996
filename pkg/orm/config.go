package orm

import "time"

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	SkipDefaultTransaction bool `mapstructure:"skip_default_transaction"`
	PrepareStmt            bool `mapstructure:"prepare_stmt"`

	// LogLevel silent / error / warn / info
	LogLevel      string        `mapstructure:"log_level"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	TablePrefix string `mapstructure:"table_prefix"`

	// Tracing 为每条语句创建 Span
	Tracing bool `mapstructure:"tracing"`

	// Replicas 只读从库（可选），审计查询走从库
	Replicas *ReplicaConfig `mapstructure:"replicas"`
}

// ReplicaConfig 读写分离配置
type ReplicaConfig struct {
	Sources []string `mapstructure:"sources"`
	// Policy random / round_robin
	Policy       string `mapstructure:"policy"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DefaultConfig 默认配置（本地 SQLite）
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "posrt.db",
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
	}
}
