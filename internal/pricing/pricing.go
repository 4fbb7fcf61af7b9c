// Package pricing computes what a sale target costs. It never touches
// inventory counters.
package pricing

import (
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Target    models.SaleTarget `json:"target"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Total     decimal.Decimal   `json:"total"`
	EarlyBird bool              `json:"early_bird"`
	QuotedAt  time.Time         `json:"quoted_at"`
}

// UnitPrice returns the ticket type's price at now, and whether the early-bird
// price applied.
func UnitPrice(tt *models.TicketType, now time.Time) (decimal.Decimal, bool) {
	if tt.EarlyBirdEndsAt != nil && now.Before(*tt.EarlyBirdEndsAt) && tt.EarlyBirdPrice.IsPositive() {
		return tt.EarlyBirdPrice, true
	}
	return tt.Price, false
}

// QuoteSale prices quantity units of target against the event's catalogue.
func QuoteSale(state *models.EventState, target models.SaleTarget, quantity int, now time.Time) (Quote, error) {
	if err := target.Validate(); err != nil {
		return Quote{}, err
	}
	if quantity <= 0 {
		return Quote{}, status.Invalid("quantity must be positive")
	}

	q := Quote{Target: target, Quantity: quantity, QuotedAt: now}

	switch target.Kind {
	case models.SaleTicketType:
		tt, ok := state.TicketTypes[target.ID]
		if !ok {
			return Quote{}, status.NotFound("ticket type", target.ID)
		}
		q.UnitPrice, q.EarlyBird = UnitPrice(tt, now)
	case models.SaleTable:
		t, ok := state.Tables[target.ID]
		if !ok {
			return Quote{}, status.NotFound("table", target.ID)
		}
		q.UnitPrice = t.Price
	case models.SaleBundle:
		b, ok := state.Bundles[target.ID]
		if !ok {
			return Quote{}, status.NotFound("bundle", target.ID)
		}
		q.UnitPrice = b.BundlePrice
	}

	q.Total = q.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return q, nil
}

// CoversQuote checks that a payment amount is at least the quoted total.
// Complimentary payments are exempt.
func CoversQuote(payment models.PaymentConfirmation, q Quote) error {
	if payment.Method == models.PaymentComplimentary {
		return nil
	}
	if payment.Amount.LessThan(q.Total) {
		return status.Invalid("payment amount %s is below the quoted total %s", payment.Amount.StringFixed(2), q.Total.StringFixed(2))
	}
	return nil
}
