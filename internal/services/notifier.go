package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-engine/models"
	"ticket-engine/utils"

	pubnub "github.com/pubnub/go/v7"
)

type NotificationType string

const (
	NotificationOfferGranted      NotificationType = "offer_granted"
	NotificationOfferExpired      NotificationType = "offer_expired"
	NotificationPurchaseCompleted NotificationType = "purchase_completed"
	NotificationEventCancelled    NotificationType = "event_cancelled"
)

// Notification is a committed engine outcome handed to outside collaborators.
type Notification struct {
	Type           NotificationType `json:"type"`
	EventID        string           `json:"event_id"`
	CustomerID     string           `json:"customer_id,omitempty"`
	EntryID        string           `json:"entry_id,omitempty"`
	PurchaseID     string           `json:"purchase_id,omitempty"`
	OfferExpiresAt *time.Time       `json:"offer_expires_at,omitempty"`
	TicketCount    int              `json:"ticket_count,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`

	Purchase *models.Purchase `json:"-"`
	Tickets  []models.Ticket  `json:"-"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MultiNotifier delivers to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PubNubNotifier pushes customer-facing notifications to the customer's channel.
type PubNubNotifier struct {
	publish func(ctx context.Context, channel string, message any) error
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		publish: func(ctx context.Context, channel string, message any) error {
			_, _, err := pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			return err
		},
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

// CustomerChannel is the channel a customer's client subscribes to for an event.
func CustomerChannel(eventID, customerID string) string {
	return fmt.Sprintf("event-%s-user-%s", eventID, customerID)
}

func (p *PubNubNotifier) Notify(ctx context.Context, n Notification) error {
	if n.CustomerID == "" {
		return nil
	}
	channel := CustomerChannel(n.EventID, n.CustomerID)
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publish(ctx, channel, n)
	})
}
