package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/jcmexdev/storefront/internal/order-service/domain"
)

type publisher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher returns a domain.Publisher that sends order events to the
// topic exchange, routed by event type (e.g. order.status_changed).
func NewPublisher(ch *amqp.Channel) domain.Publisher {
	return &publisher{ch: ch}
}

func (p *publisher) Publish(ctx context.Context, event domain.Event) error {
	msg, err := newPublishing(ctx, event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		ExchangeName,      // exchange
		RoutingKey(event), // routing key
		false,             // mandatory
		false,             // immediate
		msg,
	)
}

// RoutingKey is the topic an event is published under.
func RoutingKey(event domain.Event) string {
	return string(event.Type)
}

func newPublishing(ctx context.Context, event domain.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("could not marshal event: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Headers:      headers,
		Body:         body,
	}, nil
}

// headerCarrier lets the OTel propagator write trace context into AMQP headers.
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
