package services

import (
	"context"

	"ticket-engine/internal/pricing"
	"ticket-engine/models"
)

// Quote prices a sale against the event's current catalogue. It reserves nothing.
func (e *Engine) Quote(ctx context.Context, eventID string, target models.SaleTarget, quantity int) (pricing.Quote, error) {
	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.QuoteSale(state, target, quantity, e.clock.Now())
}
