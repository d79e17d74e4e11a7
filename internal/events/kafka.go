package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"payflow/internal/platform/config"
)

// KafkaPublisher writes events to Kafka, routing payment events and refund
// events to their own topics. Records are keyed by transaction id so a
// single transaction's events land on one partition in order.
type KafkaPublisher struct {
	client       *kgo.Client
	paymentTopic string
	refundTopic  string
	logger       *slog.Logger
}

// NewKafkaPublisher connects to the brokers and ensures both topics exist.
func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopics(ctx, 1, 1, nil, cfg.PaymentTopic, cfg.RefundTopic); err != nil {
		// Topic creation races with other instances; existing topics are fine.
		logger.WarnContext(ctx, "kafka topic bootstrap", "error", err)
	}

	return &KafkaPublisher{
		client:       client,
		paymentTopic: cfg.PaymentTopic,
		refundTopic:  cfg.RefundTopic,
		logger:       logger,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Name, err)
	}

	topic := p.paymentTopic
	if event.Refund() {
		topic = p.refundTopic
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.TransactionID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.Name, err)
	}

	p.logger.InfoContext(ctx, "event published",
		"event", event.Name,
		"topic", topic,
		"transaction_id", event.TransactionID,
		"request_id", event.CorrelationID,
	)
	return nil
}

// Health verifies broker connectivity.
func (p *KafkaPublisher) Health(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	p.client.Close()
	return nil
}
