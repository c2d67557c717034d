package kafka

import (
	"context"

	"github.com/Domenick1991/airways/internal/logger"
)

type Sink interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error
}

// EventPublisher fans a domain event out to every configured topic. Delivery
// is best effort: the store state is already committed when events go out.
type EventPublisher struct {
	sink    Sink
	topics  []string
	retries int
	log     logger.Logger
}

func NewEventPublisher(sink Sink, retries int, log logger.Logger, topics ...string) *EventPublisher {
	if retries < 1 {
		retries = 1
	}
	nonEmpty := make([]string, 0, len(topics))
	for _, t := range topics {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return &EventPublisher{sink: sink, topics: nonEmpty, retries: retries, log: log}
}

func (p *EventPublisher) Emit(ctx context.Context, event Event) {
	for _, topic := range p.topics {
		if err := p.sink.PublishWithRetry(ctx, topic, event.Key(), event, p.retries); err != nil {
			p.log.Error("event publish failed",
				logger.F("topic", topic),
				logger.F("type", event.Type),
				logger.F("event_id", event.ID),
				logger.Err(err))
		}
	}
}
