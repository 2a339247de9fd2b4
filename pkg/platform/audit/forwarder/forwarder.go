// Package forwarder ships durable audit events to Kafka for SIEM ingestion.
// Delivery is asynchronous and best effort: the trail on disk stays the
// record of truth and a failed delivery never fails the append.
package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "repairhub/pkg/platform/audit"
)

const (
	// DefaultTopic receives audit events when no topic is configured.
	DefaultTopic = "repairhub.audit.events"

	// MaxBufferedRecords bounds what is held in memory while Kafka is
	// unreachable. Beyond it events are dropped from forwarding, not queued.
	MaxBufferedRecords = 10_000
)

// Producer is the subset of *kgo.Client the forwarder needs. TryProduce must
// fail the promise with kgo.ErrMaxBuffered rather than wait for buffer space.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

type Forwarder struct {
	producer Producer
	topic    string
	logger   *slog.Logger

	delivered prometheus.Counter
	failed    prometheus.Counter
}

type Option func(*Forwarder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithRegisterer registers the delivery counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Forwarder) {
		f.delivered, f.failed = newCounters(reg)
	}
}

func newCounters(reg prometheus.Registerer) (delivered, failed prometheus.Counter) {
	factory := promauto.With(reg)
	delivered = factory.NewCounter(prometheus.CounterOpts{
		Name: "repairhub_audit_forwarded_total",
		Help: "Audit events acknowledged by Kafka",
	})
	failed = factory.NewCounter(prometheus.CounterOpts{
		Name: "repairhub_audit_forward_failures_total",
		Help: "Audit events Kafka did not acknowledge",
	})
	return delivered, failed
}

// New creates a forwarder producing to topic.
func New(producer Producer, topic string, opts ...Option) (*Forwarder, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	f := &Forwarder{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	f.delivered, f.failed = newCounters(nil)
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NewClient builds a franz-go client tuned for durable audit delivery.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.MaxBufferedRecords(MaxBufferedRecords),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", topic, err)
	}
	return nil
}

// Forward enqueues the event without waiting for buffer space. The request
// context's cancellation is detached so a finished request does not abort an
// in-flight delivery.
func (f *Forwarder) Forward(ctx context.Context, event audit.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		f.failed.Inc()
		f.logger.ErrorContext(ctx, "encode audit event for forwarding", "id", event.ID, "error", err)
		return
	}

	rec := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(event.Resource),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "status", Value: []byte(event.Status)},
		},
	}
	f.producer.TryProduce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if errors.Is(err, kgo.ErrMaxBuffered) {
			f.failed.Inc()
			f.logger.Warn("audit forward buffer full, event not forwarded", "id", event.ID, "topic", r.Topic)
			return
		}
		if err != nil {
			f.failed.Inc()
			f.logger.Error("audit event forwarding failed", "id", event.ID, "topic", r.Topic, "error", err)
			return
		}
		f.delivered.Inc()
	})
}

// Close flushes buffered records and closes the producer.
func (f *Forwarder) Close(ctx context.Context) error {
	err := f.producer.Flush(ctx)
	f.producer.Close()
	if err != nil {
		return fmt.Errorf("flush audit forwarder: %w", err)
	}
	return nil
}
