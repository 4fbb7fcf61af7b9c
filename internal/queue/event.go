// Package queue carries engine outcomes to the message broker and feeds
// settled payments back into the engine.
package queue

import (
	"time"

	"ticket-engine/models"
)

const (
	PaymentConfirmedQueue  = "payment.confirmed"
	PurchaseCompletedQueue = "ticket.purchase.completed"
	OfferExpiredQueue      = "ticket.offer.expired"
	EventCancelledQueue    = "ticket.event.cancelled"
)

// PaymentConfirmedEvent is published by the payment subsystem once a payment
// has settled. It is turned into a purchase.
type PaymentConfirmedEvent struct {
	EventID      string                     `json:"event_id"`
	CustomerID   string                     `json:"customer_id"`
	EntryID      string                     `json:"entry_id,omitempty"`
	Target       models.SaleTarget          `json:"target"`
	Quantity     int                        `json:"quantity"`
	Buyer        models.BuyerContact        `json:"buyer"`
	Payment      models.PaymentConfirmation `json:"payment"`
	ReferralCode string                     `json:"referral_code,omitempty"`
	ConfirmedAt  time.Time                  `json:"confirmed_at"`
}

func (e PaymentConfirmedEvent) PurchaseRequest() models.PurchaseRequest {
	return models.PurchaseRequest{
		EventID:      e.EventID,
		CustomerID:   e.CustomerID,
		EntryID:      e.EntryID,
		Target:       e.Target,
		Quantity:     e.Quantity,
		Buyer:        e.Buyer,
		Payment:      e.Payment,
		ReferralCode: e.ReferralCode,
	}
}

// PurchaseCompletedEvent lets downstream consumers deliver tickets and book
// revenue without reading the engine's store.
type PurchaseCompletedEvent struct {
	PurchaseID    string               `json:"purchase_id"`
	EventID       string               `json:"event_id"`
	CustomerID    string               `json:"customer_id"`
	EntryID       string               `json:"entry_id,omitempty"`
	Target        models.SaleTarget    `json:"target"`
	Units         int                  `json:"units"`
	Buyer         models.BuyerContact  `json:"buyer"`
	PaymentRef    string               `json:"payment_ref"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	TotalAmount   string               `json:"total_amount"`
	ReferralCode  string               `json:"referral_code,omitempty"`
	Commission    string               `json:"commission,omitempty"`
	TicketCodes   []string             `json:"ticket_codes"`
	CompletedAt   time.Time            `json:"completed_at"`
}

// EntryClosedEvent is published when an offer lapses or an event is cancelled.
type EntryClosedEvent struct {
	EventID    string    `json:"event_id"`
	EntryID    string    `json:"entry_id"`
	CustomerID string    `json:"customer_id"`
	Reason     string    `json:"reason"`
	ClosedAt   time.Time `json:"closed_at"`
}
