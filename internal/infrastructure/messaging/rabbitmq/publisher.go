package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wichananm65/pet-shop-fulfillment/internal/order"
)

const eventOrderPlaced = "OrderPlaced"

type orderPlaced struct {
	Event string `json:"event"`
	order.Order
}

// Publisher sends OrderPlaced events to a queue on the default exchange.
type Publisher struct {
	pool    *ChannelPool
	queue   string
	timeout time.Duration
}

func NewPublisher(pool *ChannelPool, queue string) *Publisher {
	return &Publisher{pool: pool, queue: queue, timeout: 5 * time.Second}
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, ord order.Order) error {
	body, err := json.Marshal(orderPlaced{Event: eventOrderPlaced, Order: ord})
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", ord.OrderID, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	ch, err := p.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	defer p.pool.Put(ch)

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    ord.OrderID.String(),
		Type:         eventOrderPlaced,
		Timestamp:    ord.OrderDate,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", ord.OrderID, err)
	}
	log.Debugf("rabbitmq: published %s for order %s", eventOrderPlaced, ord.OrderID)
	return nil
}
