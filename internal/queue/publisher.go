package queue

import (
	"context"

	"github.com/iliyamo/event-ticketing/internal/config"
)

// Publisher delivers lifecycle events to the configured broker.
type Publisher interface {
	Publish(ctx context.Context, ev TicketEvent) error
	Close() error
}

// NewPublisher returns the publisher selected by cfg.Kind.  BROKER=none
// yields a publisher that drops everything.
func NewPublisher(cfg config.BrokerConfig) Publisher {
	switch cfg.Kind {
	case config.BrokerAMQP:
		return NewAMQPPublisher(cfg.AMQPURL, cfg.Topic)
	case config.BrokerKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	}
	return NopPublisher{}
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TicketEvent) error { return nil }
func (NopPublisher) Close() error                               { return nil }
