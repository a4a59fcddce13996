package tracing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	perrors "github.com/tokmz/posrt/pkg/errors"
)

// TestValidate 测试配置校验
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"默认配置", func(*Config) {}, false},
		{"缺少服务名", func(c *Config) { c.ServiceName = "" }, true},
		{"采样率越界", func(c *Config) { c.SamplingRate = 1.5 }, true},
		{"未知导出器", func(c *Config) { c.Exporter = "jaeger" }, true},
		{"空导出器回退 noop", func(c *Config) { c.Exporter = "" }, false},
		{"otlp-grpc", func(c *Config) { c.Exporter = ExporterOTLPGRPC }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, perrors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Exporter)
		})
	}
}

// TestSamplerFromConfig 测试配置采样器
func TestSamplerFromConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "")

	tests := []struct {
		sampler string
		want    string
	}{
		{"always", "AlwaysOnSampler"},
		{"never", "AlwaysOffSampler"},
		{"ratio", "TraceIDRatioBased{0.5}"},
		{"parent_based", "ParentBased{root:TraceIDRatioBased{0.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.sampler, func(t *testing.T) {
			s := newSampler(&Config{Sampler: tt.sampler, SamplingRate: 0.5})
			assert.Contains(t, s.Description(), tt.want)
		})
	}
}

// TestSamplerFromEnv 测试环境变量采样器
func TestSamplerFromEnv(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "traceidratio")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	assert.Equal(t, "TraceIDRatioBased{0.25}", newSampler(DefaultConfig()).Description())

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	assert.Equal(t, "AlwaysOnSampler", newSampler(DefaultConfig()).Description(), "越界参数回退为 1")

	t.Setenv("OTEL_TRACES_SAMPLER", "always_off")
	assert.Equal(t, "AlwaysOffSampler", newSampler(DefaultConfig()).Description())
}

// TestProviderStdout 测试 stdout 导出器在 Shutdown 时输出 Span
func TestProviderStdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Sampler = "always"
	cfg.Writer = &buf

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)

	_, span := p.Tracer("test").Start(context.Background(), "realtime.broadcast")
	span.End()
	_, span = StartSpan(context.Background(), "ingest.dispatch")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "realtime.broadcast")
	assert.Contains(t, buf.String(), "ingest.dispatch")
	assert.Contains(t, buf.String(), "posrt")
}

// TestProviderDisabled 测试禁用时不导出
func TestProviderDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Writer = &buf

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	_, span := p.Tracer("test").Start(context.Background(), "dropped")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

// TestSpanHelpers 测试错误记录与属性设置
func TestSpanHelpers(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op", trace.WithSpanKind(trace.SpanKindInternal))
	SetAttributes(span, map[string]any{"sent_count": 3, "target_user_id": "cashier-7", "ok": true})
	RecordError(span, nil)
	RecordError(span, errors.New("send failed"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "send failed", spans[0].Status.Description)
	assert.Len(t, spans[0].Attributes, 3)
	assert.Len(t, spans[0].Events, 1)
}

// TestExporterCAFile 测试 CA 证书加载失败
func TestExporterCAFile(t *testing.T) {
	for _, exp := range []string{ExporterOTLP, ExporterOTLPGRPC} {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Exporter = exp
		cfg.Insecure = false
		cfg.CAFile = filepath.Join(t.TempDir(), "missing.pem")
		_, err := newExporter(context.Background(), cfg)
		assert.Error(t, err, exp)
	}

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = ExporterOTLP
	cfg.Insecure = false
	cfg.CAFile = filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(cfg.CAFile, []byte("not a cert"), 0o600))
	_, err := newExporter(context.Background(), cfg)
	assert.ErrorContains(t, err, "no certificate")
}
