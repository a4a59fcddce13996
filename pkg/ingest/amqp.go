package ingest

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
)

// AMQPConfig RabbitMQ 消费配置
type AMQPConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
	// Exchange 非空时把队列绑定到该 exchange
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	Prefetch   int    `mapstructure:"prefetch"`
	// ReconnectDelay 断线重连间隔（默认 2s）
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// AMQPSource RabbitMQ 数据源，手动 ack
type AMQPSource struct {
	cfg     *AMQPConfig
	handler *Handler
	log     logger.Logger
	dial    func(url string) (*amqp.Connection, error)
}

// NewAMQPSource 创建数据源
func NewAMQPSource(cfg *AMQPConfig, h *Handler, log logger.Logger) (*AMQPSource, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, ErrSourceConfig.WithMessage("amqp url and queue are required")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 32
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &AMQPSource{
		cfg:     cfg,
		handler: h,
		log:     log.With(zap.String("source", "amqp")),
		dial:    amqp.Dial,
	}, nil
}

// Run 消费直到 ctx 结束，连接断开后按间隔重连
func (a *AMQPSource) Run(ctx context.Context) error {
	for {
		err := a.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		a.log.Warn("amqp consumer stopped, reconnecting", zap.Error(err), zap.Duration("delay", a.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

func (a *AMQPSource) consume(ctx context.Context) error {
	conn, err := a.dial(a.cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(a.cfg.Prefetch, 0, false); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(a.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if a.cfg.Exchange != "" {
		if err := ch.QueueBind(q.Name, a.cfg.RoutingKey, a.cfg.Exchange, false, nil); err != nil {
			return err
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "posrt", false, false, false, false, nil)
	if err != nil {
		return err
	}
	a.log.Info("amqp source started", zap.String("queue", q.Name))

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("amqp connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			a.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery 成功 ack；无效消息与分发失败 nack 且不重新入队
func (a *AMQPSource) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var err error
	if _, herr := a.handler.Handle(ctx, "amqp:"+a.cfg.Queue, d.Body); herr != nil {
		err = d.Nack(false, false)
	} else {
		err = d.Ack(false)
	}
	if err != nil {
		a.log.Warn("amqp ack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
	}
}
