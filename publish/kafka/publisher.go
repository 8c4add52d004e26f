// Package kafka publishes ledger event records to a Kafka topic.
//
// The Publisher is a ledger plugin. Records are keyed by invoice id so every
// event of one invoice lands on the same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*Publisher)(nil)
	_ plugin.OnEvent    = (*Publisher)(nil)
	_ plugin.OnShutdown = (*Publisher)(nil)
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "tally.events"

// Header keys attached to every record.
const (
	HeaderKind        = "tally-kind"
	HeaderEventID     = "tally-event-id"
	HeaderContentType = "content-type"
)

// Format selects the record value encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("tally/kafka: unknown format %q", s)
	}
}

func (f Format) contentType() string {
	if f == FormatCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type flusher interface {
	Flush(ctx context.Context) error
}

// Publisher produces one Kafka record per ledger event.
type Publisher struct {
	producer Producer
	topic    string
	format   Format
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic sets the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithFormat sets the value encoding.
func WithFormat(f Format) Option {
	return func(p *Publisher) {
		p.format = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Publisher on top of producer.
func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    DefaultTopic,
		format:   FormatJSON,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// OnEvent implements plugin.OnEvent.
func (p *Publisher) OnEvent(ctx context.Context, rec event.Record) error {
	r, err := p.Record(rec)
	if err != nil {
		return err
	}
	if err := p.producer.ProduceSync(ctx, r).FirstErr(); err != nil {
		return fmt.Errorf("tally/kafka: produce seq %d: %w", rec.Seq, err)
	}
	p.logger.Debug("event published",
		"topic", p.topic,
		"seq", rec.Seq,
		"kind", string(rec.Kind),
	)
	return nil
}

// OnShutdown implements plugin.OnShutdown. Buffered records are flushed when
// the producer supports it.
func (p *Publisher) OnShutdown(ctx context.Context) error {
	if f, ok := p.producer.(flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Record builds the Kafka record for rec.
func (p *Publisher) Record(rec event.Record) (*kgo.Record, error) {
	var (
		value []byte
		err   error
	)
	switch p.format {
	case FormatCBOR:
		value, err = rec.MarshalCBOR()
	default:
		value, err = json.Marshal(rec)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/kafka: encode seq %d: %w", rec.Seq, err)
	}

	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatUint(rec.Payload.Invoice(), 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderKind, Value: []byte(rec.Kind)},
			{Key: HeaderEventID, Value: []byte(rec.ID.String())},
			{Key: HeaderContentType, Value: []byte(p.format.contentType())},
		},
		Timestamp: rec.OccurredAt,
	}, nil
}

// Dial creates a franz-go client producing to topic by default.
func Dial(brokers []string, topic string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("tally/kafka: no brokers configured")
	}
	all := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("tally/kafka: new client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic unless it already exists.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("tally/kafka: create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("tally/kafka: create topic %s: %w", topic, resp.Err)
	}
	return nil
}
