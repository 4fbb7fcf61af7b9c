package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxReconnectBackoff = 30 * time.Second

type Purchaser interface {
	Purchase(ctx context.Context, req models.PurchaseRequest) (models.PurchaseResult, error)
}

// Consumer turns payment confirmations into purchases.
type Consumer struct {
	url       string
	queue     string
	prefetch  int
	purchaser Purchaser
}

func NewConsumer(url, queue string, purchaser Purchaser) *Consumer {
	if queue == "" {
		queue = PaymentConfirmedQueue
	}
	return &Consumer{url: url, queue: queue, prefetch: 50, purchaser: purchaser}
}

// Run consumes until ctx is done, reconnecting with a doubling backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("payment-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxReconnectBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("payment-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		log.Printf("payment-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			requeue, err := c.handle(ctx, d.Body)
			if err != nil {
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle processes one delivery. Transient failures ask for a requeue; a
// message the engine rejects on its merits is dropped.
func (c *Consumer) handle(ctx context.Context, body []byte) (bool, error) {
	var ev PaymentConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		slog.Error("Discarding malformed payment confirmation", "error", err)
		return false, fmt.Errorf("unmarshal: %w", err)
	}

	res, err := c.purchaser.Purchase(ctx, ev.PurchaseRequest())
	if err != nil {
		kind := status.KindOf(err)
		requeue := kind == status.KindInternal || kind == status.KindContention
		slog.Error("Payment confirmation not fulfilled",
			"event_id", ev.EventID, "customer_id", ev.CustomerID, "payment_ref", ev.Payment.Reference,
			"kind", kind, "requeue", requeue, "error", err)
		return requeue, err
	}

	slog.Info("Payment confirmation fulfilled", "event_id", ev.EventID, "purchase_id", res.PurchaseID, "tickets", len(res.Tickets))
	return false, nil
}
