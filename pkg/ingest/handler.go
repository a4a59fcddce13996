package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
	"github.com/tokmz/posrt/pkg/realtime"
)

// Event 订单、库存等子系统投递的通知
//
//	{"id":"...","type":"order_created","payload":{...},"targetUserId":"cashier-7"}
type Event struct {
	ID           string          `json:"id,omitempty"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	TargetUserID *string         `json:"targetUserId,omitempty"`

	generatedID bool
}

// Publisher 广播出口，*realtime.Manager 实现该接口
type Publisher interface {
	Publish(ctx context.Context, req realtime.BroadcastRequest, opts ...realtime.BroadcastOption) (*realtime.BroadcastResult, error)
}

// Handler 解码事件并以 ingest 来源广播
type Handler struct {
	pub    Publisher
	log    logger.Logger
	dedupe *Deduper
}

// HandlerOption Handler 选项
type HandlerOption func(*Handler)

// WithDeduper 跳过窗口内重复投递的事件
func WithDeduper(d *Deduper) HandlerOption {
	return func(h *Handler) { h.dedupe = d }
}

// NewHandler 创建 Handler
func NewHandler(pub Publisher, log logger.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handler{pub: pub, log: log.With(zap.String("module", "ingest"))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Decode 解析消息体，非 JSON 对象或缺少 type 返回 ErrMalformedEvent
func Decode(body []byte) (*Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedEvent.WithError(fmt.Errorf("not a JSON object"))
	}

	var e Event
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return nil, ErrMalformedEvent.WithError(err)
	}
	if e.Type == "" {
		return nil, ErrMalformedEvent.WithError(fmt.Errorf("missing type"))
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
		e.generatedID = true
	}
	return &e, nil
}

// Handle 处理一条消息，返回 ErrMalformedEvent 时调用方应丢弃该消息
// 重复事件不广播，返回 SentCount 为 0 的成功结果
func (h *Handler) Handle(ctx context.Context, source string, body []byte) (*realtime.BroadcastResult, error) {
	e, err := Decode(body)
	if err != nil {
		h.log.WarnContext(ctx, "malformed ingest event",
			zap.String("source", source),
			zap.Int("size", len(body)),
			zap.Error(err),
		)
		return nil, err
	}

	if h.dedupe != nil && !e.generatedID && h.dedupe.Seen(e.ID) {
		h.log.DebugContext(ctx, "duplicate ingest event skipped",
			zap.String("source", source),
			zap.String("event_id", e.ID),
		)
		return &realtime.BroadcastResult{Success: true}, nil
	}

	res, err := h.pub.Publish(ctx, realtime.BroadcastRequest{
		Type:         e.Type,
		Payload:      e.Payload,
		TargetUserID: e.TargetUserID,
	}, realtime.WithOrigin(realtime.OriginIngest))
	if err != nil {
		h.log.ErrorContext(ctx, "ingest dispatch failed",
			zap.String("source", source),
			zap.String("event_id", e.ID),
			zap.String("type", e.Type),
			zap.Error(err),
		)
		return nil, ErrDispatch.WithError(err)
	}

	h.log.DebugContext(ctx, "ingest event dispatched",
		zap.String("source", source),
		zap.String("event_id", e.ID),
		zap.String("type", e.Type),
		zap.Int("sent", res.SentCount),
	)
	return res, nil
}
