package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
)

// KafkaConfig Kafka 消费配置
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  []string `mapstructure:"topics"`
	// Version Kafka 协议版本，如 "3.6.0"
	Version string `mapstructure:"version"`
	// InitialOffset oldest / newest（默认 newest，重启后不补发历史通知）
	InitialOffset string `mapstructure:"initial_offset"`
}

// saramaConfig 转换为 sarama 配置
func (c *KafkaConfig) saramaConfig() (*sarama.Config, error) {
	if len(c.Brokers) == 0 || len(c.Topics) == 0 || c.GroupID == "" {
		return nil, ErrSourceConfig.WithMessage("kafka brokers, topics and group_id are required")
	}

	sc := sarama.NewConfig()
	sc.ClientID = "posrt"
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, ErrSourceConfig.WithError(err)
		}
		sc.Version = v
	}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.InitialOffset == "oldest" {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Return.Errors = true
	return sc, nil
}

// KafkaSource Kafka 消费组数据源
type KafkaSource struct {
	cfg     *KafkaConfig
	group   sarama.ConsumerGroup
	handler *Handler
	log     logger.Logger
}

// NewKafkaSource 创建消费组，不会立即开始消费
func NewKafkaSource(cfg *KafkaConfig, h *Handler, log logger.Logger) (*KafkaSource, error) {
	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, ErrSourceConfig.WithError(err)
	}
	return newKafkaSource(cfg, group, h, log), nil
}

func newKafkaSource(cfg *KafkaConfig, group sarama.ConsumerGroup, h *Handler, log logger.Logger) *KafkaSource {
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaSource{
		cfg:     cfg,
		group:   group,
		handler: h,
		log:     log.With(zap.String("source", "kafka")),
	}
}

// Run 持续消费直到 ctx 结束；重平衡后重新加入消费组
func (k *KafkaSource) Run(ctx context.Context) error {
	go func() {
		for err := range k.group.Errors() {
			k.log.Warn("kafka consumer error", zap.Error(err))
		}
	}()
	defer func() { _ = k.group.Close() }()

	k.log.Info("kafka source started", zap.Strings("topics", k.cfg.Topics), zap.String("group", k.cfg.GroupID))
	for {
		err := k.group.Consume(ctx, k.cfg.Topics, &claimHandler{handler: k.handler, log: k.log})
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			k.log.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// claimHandler sarama.ConsumerGroupHandler 实现
type claimHandler struct {
	handler *Handler
	log     logger.Logger
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 分发后提交位移；无效消息同样提交，避免阻塞分区
func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			_, _ = h.handler.Handle(sess.Context(), "kafka:"+msg.Topic, msg.Value)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
