// Package consumer runs a Kafka consumer-group poll loop with franz-go.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Handler processes one message. A returned error stops the poll loop before
// the batch is committed, so the message is redelivered after restart.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Config selects the group and topics to consume.
type Config struct {
	Brokers []string
	Group   string
	Topics  []string
}

// Consumer commits offsets manually after each fully handled poll batch.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer requires at least one broker")
	}
	if cfg.Group == "" || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer requires a group and topics")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until ctx is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		var handleErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = handler.Handle(ctx, toMessage(r))
		})
		if handleErr != nil {
			return fmt.Errorf("handle kafka message: %w", handleErr)
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "kafka commit failed", "error", err)
		}
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}

func toMessage(r *kgo.Record) *Message {
	msg := &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
	}
	if len(r.Headers) > 0 {
		msg.Headers = make(map[string]string, len(r.Headers))
		for _, h := range r.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
