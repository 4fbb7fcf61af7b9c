package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ticket-engine/internal/services"
	"ticket-engine/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher forwards engine notifications to durable broker queues. It keeps
// one channel open and reopens it after a failure.
type Publisher struct {
	open    func() (publishChannel, func() error, error)
	breaker *utils.CircuitBreaker

	mu       sync.Mutex
	ch       publishChannel
	closer   func() error
	declared map[string]bool
}

func NewPublisher(url string) *Publisher {
	return &Publisher{
		open: func() (publishChannel, func() error, error) {
			conn, err := amqp.Dial(url)
			if err != nil {
				return nil, nil, fmt.Errorf("dial broker: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, nil, fmt.Errorf("open channel: %w", err)
			}
			return ch, conn.Close, nil
		},
		breaker:  utils.NewCircuitBreaker("amqp-publisher"),
		declared: make(map[string]bool),
	}
}

// Notify implements services.Notifier. Offer grants are left to the realtime
// channel; everything else is published.
func (p *Publisher) Notify(ctx context.Context, n services.Notification) error {
	queue, payload, ok := messageFor(n)
	if !ok {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", n.Type, err)
	}
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publish(ctx, queue, body, n.OccurredAt)
	})
}

func messageFor(n services.Notification) (string, any, bool) {
	switch n.Type {
	case services.NotificationPurchaseCompleted:
		if n.Purchase == nil {
			return "", nil, false
		}
		p := n.Purchase
		ev := PurchaseCompletedEvent{
			PurchaseID:    p.ID,
			EventID:       p.EventID,
			CustomerID:    p.CustomerID,
			EntryID:       p.EntryID,
			Target:        p.Target,
			Units:         p.Units,
			Buyer:         p.Buyer,
			PaymentRef:    p.PaymentRef,
			PaymentMethod: p.PaymentMethod,
			TotalAmount:   p.TotalAmount.StringFixed(2),
			ReferralCode:  p.ReferralCode,
			CompletedAt:   n.OccurredAt,
		}
		if p.ReferralCode != "" {
			ev.Commission = p.Commission.StringFixed(2)
		}
		for _, t := range n.Tickets {
			ev.TicketCodes = append(ev.TicketCodes, t.Code)
		}
		return PurchaseCompletedQueue, ev, true

	case services.NotificationOfferExpired:
		return OfferExpiredQueue, EntryClosedEvent{
			EventID: n.EventID, EntryID: n.EntryID, CustomerID: n.CustomerID,
			Reason: "offer_expired", ClosedAt: n.OccurredAt,
		}, true

	case services.NotificationEventCancelled:
		return EventCancelledQueue, EntryClosedEvent{
			EventID: n.EventID, EntryID: n.EntryID, CustomerID: n.CustomerID,
			Reason: "event_cancelled", ClosedAt: n.OccurredAt,
		}, true
	}
	return "", nil, false
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, closer, err := p.open()
		if err != nil {
			return err
		}
		p.ch, p.closer = ch, closer
		p.declared = make(map[string]bool)
	}

	if !p.declared[queue] {
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	if at.IsZero() {
		at = time.Now()
	}
	err := p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    at.UTC(),
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", queue, err)
		p.resetLocked()
		return err
	}
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closer != nil {
		_ = p.closer()
	}
	p.ch, p.closer = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	if p.closer != nil {
		err = errors.Join(err, p.closer())
	}
	p.ch, p.closer = nil, nil
	return err
}
