// Package redis publishes ledger event records over Redis pub/sub and,
// optionally, appends them to a capped Redis stream for replay.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/tally/event"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin  = (*Publisher)(nil)
	_ plugin.OnEvent = (*Publisher)(nil)
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "tally:events"

// Client is the subset of redis.UniversalClient the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher sends every ledger event to a Redis channel.
type Publisher struct {
	client       Client
	channel      string
	stream       string
	streamMaxLen int64
	logger       *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(p *Publisher) {
		if channel != "" {
			p.channel = channel
		}
	}
}

// WithStream also appends each record to stream, trimmed to roughly maxLen
// entries. A maxLen of zero keeps everything.
func WithStream(stream string, maxLen int64) Option {
	return func(p *Publisher) {
		p.stream = stream
		p.streamMaxLen = maxLen
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Publisher.
func New(client Client, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		channel: DefaultChannel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "redis-publisher" }

// OnEvent implements plugin.OnEvent.
func (p *Publisher) OnEvent(ctx context.Context, rec event.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tally/redis: encode seq %d: %w", rec.Seq, err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("tally/redis: publish seq %d: %w", rec.Seq, err)
	}

	if p.stream != "" {
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"seq":        strconv.FormatUint(rec.Seq, 10),
				"kind":       string(rec.Kind),
				"invoice_id": strconv.FormatUint(rec.Payload.Invoice(), 10),
				"record":     payload,
			},
		}
		if p.streamMaxLen > 0 {
			args.MaxLen = p.streamMaxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("tally/redis: stream seq %d: %w", rec.Seq, err)
		}
	}

	p.logger.Debug("event published",
		"channel", p.channel,
		"receivers", receivers,
		"seq", rec.Seq,
	)
	return nil
}

// Dial connects to the Redis server at url and checks it responds.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("tally/redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tally/redis: ping: %w", err)
	}
	return client, nil
}
