package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"bastion-hq/aegis/pkg/audit"
)

// KafkaConfig configures the Kafka writer.
type KafkaConfig struct {
	Brokers []string

	// Topic receives every flushed event.
	Topic string

	// AlertTopic receives escalated events. Escalation is disabled when
	// empty.
	AlertTopic string

	ClientID string
}

// producer is the subset of *kgo.Client used by KafkaWriter.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaWriter publishes sealed events as JSON, keyed by event id. It
// implements audit.Writer and audit.Escalator.
type KafkaWriter struct {
	client     producer
	topic      string
	alertTopic string
	logger     *slog.Logger
}

// NewKafkaWriter connects a franz-go client.
func NewKafkaWriter(cfg KafkaConfig, logger *slog.Logger) (*KafkaWriter, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, audit.NewStorageError("kafka", "connect", err)
	}
	return newKafkaWriter(client, cfg, logger), nil
}

func newKafkaWriter(client producer, cfg KafkaConfig, logger *slog.Logger) *KafkaWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaWriter{
		client:     client,
		topic:      cfg.Topic,
		alertTopic: cfg.AlertTopic,
		logger:     logger.With("component", "audit.storage.kafka", "topic", cfg.Topic),
	}
}

// Write produces one record per event and waits for all acks.
func (w *KafkaWriter) Write(ctx context.Context, events []*audit.Event, opts audit.WriteOptions) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		rec, err := eventRecord(w.topic, e)
		if err != nil {
			return audit.NewStorageError("kafka", "encode", err)
		}
		rec.Headers = append(rec.Headers, kgo.RecordHeader{
			Key:   "retention_days",
			Value: []byte(strconv.Itoa(opts.RetentionDays)),
		})
		records = append(records, rec)
	}

	if err := w.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return audit.NewStorageError("kafka", "produce", err)
	}
	w.logger.Debug("audit batch published", "count", len(events))
	return nil
}

// Escalate publishes e to the alert topic.
func (w *KafkaWriter) Escalate(ctx context.Context, e *audit.Event) error {
	if w.alertTopic == "" {
		return nil
	}
	rec, err := eventRecord(w.alertTopic, e)
	if err != nil {
		return audit.NewStorageError("kafka", "encode", err)
	}
	rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: "risk_level", Value: []byte(e.RiskLevel)})
	if err := w.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return audit.NewStorageError("kafka", "escalate", err)
	}
	return nil
}

// Close flushes and closes the client.
func (w *KafkaWriter) Close() error {
	w.client.Close()
	return nil
}

func eventRecord(topic string, e *audit.Event) (*kgo.Record, error) {
	if !e.Sealed() {
		return nil, fmt.Errorf("event %s has plaintext fields", e.ID)
	}
	value, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(e.ID),
		Value:     value,
		Timestamp: e.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}
