package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes JSON events to one topic, keyed by Event.Key so a
// user's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zerolog.Logger
}

// NewKafkaProducerConfig waits for all in-sync replicas and retries three times.
func NewKafkaProducerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = true
	return c
}

// NewKafkaPublisher dials the brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zerolog.Logger) *KafkaPublisher {
	l := logger.With().Str("component", "KafkaPublisher").Str("topic", topic).Logger()
	return &KafkaPublisher{producer: producer, topic: topic, log: &l}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e adapter.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		metrics.IncEventPublished(e.Type, "error")
		return fmt.Errorf("encode event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.Key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.Type)},
			{Key: []byte("event_id"), Value: []byte(e.ID)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		metrics.IncEventPublished(e.Type, "error")
		return fmt.Errorf("kafka send: %w", err)
	}
	metrics.IncEventPublished(e.Type, "ok")
	p.log.Debug().Str("event", e.Type).Str("event_id", e.ID).
		Int32("partition", partition).Int64("offset", offset).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
