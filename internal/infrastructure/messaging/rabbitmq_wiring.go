package messaging

import (
	messaging "github.com/rodolfodevapp/eventshop-messaging-go/rabbitmq"
)

// NewProducerBus builds the producer the outbox dispatcher publishes
// through. Inbound marketplace data arrives over HTTP webhooks and pulls,
// so there is no consumer side here.
func NewProducerBus(rabbitUri string) *messaging.RabbitMqEventBus {
	opts := messaging.RabbitMqOptions{
		URI:          rabbitUri,
		ExchangeName: "stocksync.events",
		QueuePrefix:  "stocksync.dispatcher.v1",
		Prefetch:     32,
		RetryDelayMs: 30000,
	}
	return messaging.NewRabbitMqEventBus(opts, nil, nil)
}
