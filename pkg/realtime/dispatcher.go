package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/posrt/pkg/logger"
)

const tracerName = "github.com/tokmz/posrt/pkg/realtime"

// Origin 广播来源
type Origin string

const (
	// OriginAdmin 管理端 HTTP 接口
	OriginAdmin Origin = "admin"
	// OriginSession 客户端 broadcast 消息
	OriginSession Origin = "session"
	// OriginIngest 消息队列
	OriginIngest Origin = "ingest"
)

// BroadcastOption 广播选项
type BroadcastOption func(*broadcastOptions)

type broadcastOptions struct {
	origin Origin
	sender string
}

// WithOrigin 设置广播来源
func WithOrigin(origin Origin) BroadcastOption {
	return func(o *broadcastOptions) {
		o.origin = origin
	}
}

// WithSender 设置发起广播的会话 ID
func WithSender(sessionID string) BroadcastOption {
	return func(o *broadcastOptions) {
		o.sender = sessionID
	}
}

// BroadcastSummary 广播结果摘要，随 EventBroadcastCompleted 发布
type BroadcastSummary struct {
	MessageType  string
	Origin       Origin
	Sender       string
	TargetUserID *string
	SentCount    int
	Pruned       int
	Duration     time.Duration
}

// pruneFunc 发送失败时移除会话
type pruneFunc func(ctx context.Context, s *Session, cause error)

// Dispatcher 广播分发器
type Dispatcher struct {
	registry *Registry
	workers  int
	prune    pruneFunc
	metrics  Metrics
	events   *EventBus
	log      logger.Logger
	tracer   trace.Tracer
}

// newDispatcher 创建分发器
func newDispatcher(registry *Registry, workers int, prune pruneFunc, metrics Metrics, events *EventBus, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		workers:  workers,
		prune:    prune,
		metrics:  metrics,
		events:   events,
		log:      log,
		tracer:   otel.Tracer(tracerName),
	}
}

// Broadcast 将消息序列化一次后发送给命中的会话，返回成功入队的会话数
// target 为 nil 时发送给全部会话，否则只发送给 UserID 完全相等的会话
// 单个会话发送失败会被移除并继续发送其余会话
func (d *Dispatcher) Broadcast(ctx context.Context, msg any, target *string, opts ...BroadcastOption) (int, error) {
	options := broadcastOptions{origin: OriginAdmin}
	for _, opt := range opts {
		opt(&options)
	}

	msgType := ""
	if f, ok := msg.(Frame); ok {
		msgType = f.MessageType()
	}

	ctx, span := d.tracer.Start(ctx, "realtime.broadcast", trace.WithAttributes(
		attribute.String("realtime.message_type", msgType),
		attribute.String("realtime.origin", string(options.origin)),
	))
	defer span.End()
	if target != nil {
		span.SetAttributes(attribute.String("realtime.target_user_id", *target))
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	start := time.Now()
	var sent, pruned atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for _, s := range d.registry.All() {
		if !s.matches(target) {
			continue
		}
		g.Go(func() error {
			if err := s.Send(data); err != nil {
				pruned.Add(1)
				d.prune(ctx, s, err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	summary := BroadcastSummary{
		MessageType:  msgType,
		Origin:       options.origin,
		Sender:       options.sender,
		TargetUserID: target,
		SentCount:    int(sent.Load()),
		Pruned:       int(pruned.Load()),
		Duration:     time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("realtime.sent_count", summary.SentCount),
		attribute.Int("realtime.pruned", summary.Pruned),
	)
	d.metrics.RecordBroadcast(summary.SentCount, summary.Pruned, summary.Duration)
	d.log.DebugContext(ctx, "broadcast completed",
		zap.String("type", msgType),
		zap.String("origin", string(options.origin)),
		zap.Int("sent", summary.SentCount),
		zap.Int("pruned", summary.Pruned),
	)
	d.events.Publish(Event{
		Type:      EventBroadcastCompleted,
		SessionID: options.sender,
		Data:      summary,
	})

	return summary.SentCount, nil
}
