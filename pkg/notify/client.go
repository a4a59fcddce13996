package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
)

// Notification 待广播的通知
type Notification struct {
	Type         string  `json:"type"`
	Payload      any     `json:"payload"`
	TargetUserID *string `json:"targetUserId,omitempty"`

	// IdempotencyKey 非空时作为 Idempotency-Key 请求头，服务端据此去重
	IdempotencyKey string `json:"-"`
}

// Result 服务端返回
type Result struct {
	Success   bool `json:"success"`
	SentCount int  `json:"sentCount"`
}

// Client 调用管理端广播接口的客户端
type Client struct {
	cfg    *Config
	client *http.Client
	log    logger.Logger
}

// New 创建客户端
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 使用配置创建客户端
func NewWithConfig(cfg *Config) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTracingTransport(transport),
		},
		log: log.With(zap.String("module", "notify")),
	}
}

// endpoint 广播接口地址
func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.Trim(c.cfg.Prefix, "/") + "/broadcast"
}

// Broadcast 发送通知
func (c *Client) Broadcast(ctx context.Context, n Notification) (*Result, error) {
	if n.Type == "" {
		return nil, ErrInvalidNotification
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, ErrMarshal.WithError(err)
	}

	if c.cfg.Retry == nil {
		return c.doOnce(ctx, n, body)
	}

	rc := *c.cfg.Retry
	rc.normalize()

	var permanent bool
	res, err := backoff.Retry(ctx, func() (*Result, error) {
		res, err := c.doOnce(ctx, n, body)
		if err != nil && !rc.RetryIf(statusOf(err), transportErr(err)) {
			permanent = true
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(rc.backOff()), backoff.WithMaxTries(uint(rc.MaxAttempts+1)))
	switch {
	case err == nil:
		return res, nil
	case permanent:
		return nil, err
	case ctx.Err() != nil:
		return nil, ErrTimeout.WithError(ctx.Err())
	}
	return nil, ErrMaxRetry.WithError(err)
}

// statusError 携带状态码的非 2xx 响应
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// statusOf 从错误中取出响应状态码，网络错误返回 0
func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// transportErr 非状态码错误视为网络错误
func transportErr(err error) error {
	if statusOf(err) != 0 {
		return nil
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, n Notification, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, ErrRequestFailed.WithError(err)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", n.IdempotencyKey)
	}

	var span trace.Span
	if c.cfg.Tracing {
		var spanCtx context.Context
		spanCtx, span = otel.Tracer("posrt.notify").Start(ctx, "notify.broadcast",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("message.type", n.Type),
				attribute.String("http.url", req.URL.String()),
			),
		)
		defer span.End()
		req = req.WithContext(spanCtx)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.log.ErrorContext(req.Context(), "broadcast request failed", zap.String("type", n.Type), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ErrTimeout.WithError(err)
		}
		return nil, ErrRequestFailed.WithError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrRequestFailed.WithError(err)
	}
	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if span != nil {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		c.log.WarnContext(req.Context(), "broadcast rejected",
			zap.String("type", n.Type),
			zap.Int("status", resp.StatusCode),
			zap.Duration("latency", time.Since(start)),
		)
		return nil, ErrBroadcastFailed.WithError(&statusError{code: resp.StatusCode, body: string(data)})
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, ErrUnmarshal.WithError(err)
	}
	c.log.DebugContext(req.Context(), "broadcast sent",
		zap.String("type", n.Type),
		zap.Int("sent", res.SentCount),
		zap.Duration("latency", time.Since(start)),
	)
	return &res, nil
}
