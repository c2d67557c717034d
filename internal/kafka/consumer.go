package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/airways/internal/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	log     logger.Logger
	backOff func() backoff.BackOff
}

func NewConsumer(brokers []string, groupID, topic string, log logger.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		log:     log,
		backOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads until ctx is done. A message is committed only after its
// handler succeeds; a failing handler is retried on the same message until it
// does. Handlers return nil for messages that no retry can fix.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(context.Context, kafka.Message) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, handler(ctx, msg)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Error("kafka handler failed, retrying",
				logger.F("topic", msg.Topic),
				logger.F("partition", msg.Partition),
				logger.F("offset", msg.Offset),
				logger.F("retry_in", next.String()),
				logger.Err(err))
		}),
	)
	return err
}
