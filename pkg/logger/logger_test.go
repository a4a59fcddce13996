package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil},
		{name: "console output", config: &Config{Level: InfoLevel, Format: JSONFormat, Console: true}},
		{name: "file output", config: &Config{Format: JSONFormat, File: filepath.Join(dir, "app.log")}},
		{name: "rotate output", config: &Config{Rotate: &RotateConfig{Filename: filepath.Join(dir, "rotate.log")}}},
		{name: "invalid format", config: &Config{Format: Format("xml")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.Info("hello")
		})
	}
}

// TestPresets 测试预置 Logger 的级别
func TestPresets(t *testing.T) {
	prod, err := NewProduction()
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, prod.Level())

	dev, err := NewDevelopment()
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, dev.Level())

	NewNop().Error("discarded")
}

// TestSetLevel 测试动态调整级别会影响实际输出
func TestSetLevel(t *testing.T) {
	var written []string
	l, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithFileOutput(filepath.Join(t.TempDir(), "level.log")),
		WithHook(hookFunc(func(e zapcore.Entry, _ []zapcore.Field) error {
			written = append(written, e.Message)
			return nil
		})),
	)
	require.NoError(t, err)

	l.Info("before")
	l.SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, l.Level())
	l.Info("dropped")

	child := l.With(zap.String("module", "realtime"))
	child.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, l.Level(), "子 Logger 与父 Logger 共享级别")
	l.Warn("dropped too")
	l.Error("after")

	assert.Equal(t, []string{"before", "after"}, written)
}

// TestContextFields 测试从 context 提取 trace_id、span_id、uid
func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core), DebugLevel)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = WithUID(ctx, "cashier-7")

	l.InfoContext(ctx, "auth", zap.String("session_id", "s1"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "cashier-7", fields["uid"])
	assert.Equal(t, "s1", fields["session_id"])
}

// TestExplicitTraceIDWins 测试显式 TraceID 优先于 Span 中的 TraceID
func TestExplicitTraceIDWins(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core), DebugLevel)

	ctx := WithTraceID(context.Background(), "manual-trace")
	l.WithContext(ctx).Warn("slow broadcast")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "manual-trace", logs.All()[0].ContextMap()["trace_id"])
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{" warn ", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, zapcore.Level(tt.want).String(), got.String())
		})
	}
}

// TestHook 测试 Hook 机制
func TestHook(t *testing.T) {
	var called int
	l, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithFileOutput(filepath.Join(t.TempDir(), "hook.log")),
		WithHook(hookFunc(func(zapcore.Entry, []zapcore.Field) error {
			called++
			return nil
		})),
	)
	require.NoError(t, err)

	l.Debug("filtered by level")
	l.Info("test hook")

	assert.Equal(t, 1, called)
}

type hookFunc func(zapcore.Entry, []zapcore.Field) error

func (f hookFunc) OnWrite(e zapcore.Entry, fields []zapcore.Field) error { return f(e, fields) }

// TestRotateDefaults 测试轮转配置默认值
func TestRotateDefaults(t *testing.T) {
	cfg := &Config{Rotate: &RotateConfig{Filename: "x.log"}, Sampling: &SamplingConfig{}}
	cfg.setDefaults()

	assert.Equal(t, 100, cfg.Rotate.MaxSize)
	assert.Equal(t, 30, cfg.Rotate.MaxAge)
	assert.Equal(t, 10, cfg.Rotate.MaxBackups)
	assert.Equal(t, 100, cfg.Sampling.Initial)
	assert.False(t, cfg.Console, "已配置轮转输出时不默认开启控制台")
}

// TestFields 测试固定字段写入每条日志
func TestFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.log")
	l, err := NewWithOptions(
		WithFileOutput(path),
		WithField("service", "posrt"),
		WithField("node", ""),
		WithCaller(false),
	)
	require.NoError(t, err)

	l.Info("started")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"posrt"`)
	assert.NotContains(t, string(data), `"node"`)
}
