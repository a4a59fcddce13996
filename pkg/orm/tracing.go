package orm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "posrt.gorm"

// TracingPlugin 为 GORM 语句创建 Client Span
type TracingPlugin struct {
	// withSQL 记录完整 SQL，默认关闭
	withSQL bool
}

// TracingOption 追踪插件选项
type TracingOption func(*TracingPlugin)

// WithSQLTrace 在 Span 中记录 SQL 语句
func WithSQLTrace(enable bool) TracingOption {
	return func(p *TracingPlugin) {
		p.withSQL = enable
	}
}

// NewTracingPlugin 创建追踪插件
func NewTracingPlugin(opts ...TracingOption) *TracingPlugin {
	p := &TracingPlugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 插件名称
func (p *TracingPlugin) Name() string {
	return "posrt:tracing"
}

// Initialize 注册 create/query/update/delete/row/raw 回调
func (p *TracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("posrt:before_create", p.before("gorm.create")),
		cb.Create().After("gorm:create").Register("posrt:after_create", p.after),
		cb.Query().Before("gorm:query").Register("posrt:before_query", p.before("gorm.query")),
		cb.Query().After("gorm:query").Register("posrt:after_query", p.after),
		cb.Update().Before("gorm:update").Register("posrt:before_update", p.before("gorm.update")),
		cb.Update().After("gorm:update").Register("posrt:after_update", p.after),
		cb.Delete().Before("gorm:delete").Register("posrt:before_delete", p.before("gorm.delete")),
		cb.Delete().After("gorm:delete").Register("posrt:after_delete", p.after),
		cb.Row().Before("gorm:row").Register("posrt:before_row", p.before("gorm.row")),
		cb.Row().After("gorm:row").Register("posrt:after_row", p.after),
		cb.Raw().Before("gorm:raw").Register("posrt:before_raw", p.before("gorm.raw")),
		cb.Raw().After("gorm:raw").Register("posrt:after_raw", p.after),
	)
}

func (p *TracingPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, _ = otel.Tracer(tracerName).Start(ctx, op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("db.system", db.Dialector.Name())),
		)
		db.Statement.Context = ctx
	}
}

func (p *TracingPlugin) after(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if p.withSQL {
		span.SetAttributes(attribute.String("db.statement", db.Statement.SQL.String()))
	}

	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
