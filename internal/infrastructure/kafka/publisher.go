// Package kafka publishes deal alerts to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/flyerlens/backend/internal/analytics"
	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/logging"
)

// Publisher implements domain.DealPublisher on a sarama SyncProducer
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewConfig returns the producer configuration used for alerts
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "flyerlens"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	// required by SyncProducer
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 10 * time.Second
	return cfg
}

// NewPublisher connects to brokers
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, topic), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logging.Component("kafka")}
}

// Publish sends one message per alert, keyed by SKU so alerts for the same
// product land on the same partition
func (p *Publisher) Publish(ctx context.Context, alerts []domain.DealAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	messages := make([]*sarama.ProducerMessage, 0, len(alerts))
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPublishFailure, err)
		}
		messages = append(messages, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(analytics.SKU(alert.Record)),
			Value: sarama.ByteEncoder(payload),
			Headers: []sarama.RecordHeader{
				{Key: []byte("week"), Value: []byte(alert.Week)},
			},
		})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.producer.SendMessages(messages); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublishFailure, err)
	}

	p.logger.Info().Int("alerts", len(messages)).Str("topic", p.topic).Msg("published deal alerts")
	return nil
}

func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
