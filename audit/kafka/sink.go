// Package kafka publishes goGuard audit events to a Kafka topic.
//
// Events are keyed by user ID so every record for one account lands on the
// same partition and keeps its order. Anonymous events carry no key.
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "goguard.audit"

var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Config selects brokers and producer behaviour.
type Config struct {
	Brokers  []string      `mapstructure:"brokers"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
}

// SaramaConfig builds the producer configuration for cfg. SyncProducer
// requires Return.Successes.
func (cfg Config) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	if cfg.Retries > 0 {
		sc.Producer.Retry.Max = cfg.Retries
	}
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	return sc
}

// Sink is a goGuard.AuditSink writing one message per event. Emit is called
// from the audit dispatcher goroutine, so a slow broker delays later events
// but never a request.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ goGuard.AuditSink = (*Sink)(nil)

// New dials the brokers and returns a sink that owns its producer.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, err
	}
	return NewWithProducer(producer, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer. The sink takes ownership and
// closes it in Close.
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{producer: producer, topic: topic, logger: logger}
}

// Message converts ev into a producer message.
func (s *Sink) Message(ev goGuard.AuditEvent) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: ev.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("event_id"), Value: []byte(ev.ID)},
		},
	}
	if ev.UserID != "" {
		msg.Key = sarama.StringEncoder(ev.UserID)
	}
	return msg, nil
}

// Emit publishes ev. Failures are logged; audit delivery never reaches the
// request path.
func (s *Sink) Emit(ctx context.Context, ev goGuard.AuditEvent) {
	if ctx.Err() != nil {
		s.logger.Warn("audit event skipped", zap.String("event_id", ev.ID), zap.Error(ctx.Err()))
		return
	}
	msg, err := s.Message(ev)
	if err != nil {
		s.logger.Error("audit event encode failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		s.logger.Error("audit event publish failed",
			zap.String("topic", s.topic),
			zap.String("event_type", ev.Type),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("audit event published",
		zap.String("event_type", ev.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
}

func (s *Sink) Close() error {
	return s.producer.Close()
}
