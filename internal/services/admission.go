package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

// JoinWaitingList admits a customer. The entry is OFFERED straight away when the
// event has a free unit, otherwise it queues as WAITING behind earlier entries.
func (e *Engine) JoinWaitingList(ctx context.Context, eventID, customerID string) (models.JoinResult, error) {
	if eventID == "" || customerID == "" {
		return models.JoinResult{}, status.Invalid("event id and customer id are required")
	}

	var (
		fx     effects
		result models.JoinResult
	)
	_, err := e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		now := e.clock.Now()

		if state.Event.Cancelled {
			return fmt.Errorf("join event %s: %w", eventID, status.ErrEventCancelled)
		}
		e.settle(state, now, &fx)

		if existing := state.ActiveEntryFor(customerID); existing != nil {
			return fmt.Errorf("customer %s holds entry %s (%s): %w", customerID, existing.ID, existing.Status, status.ErrAlreadyQueued)
		}

		entry := appendEntry(state, customerID, now)

		// The OFFERED entry itself carries the hold, so the reservation is
		// released as soon as the offer is recorded.
		caps := newCapacityStore(state, now, entry.ID)
		hold := models.PoolDeduction{Pool: models.EventPool(eventID), Quantity: 1}
		if err := caps.TryReserve(hold); err == nil {
			offerEntry(entry, now, e.offerWindow)
			caps.Release(hold)
			fx.offers = append(fx.offers, *entry)
		}

		result = models.JoinResult{
			EntryID:        entry.ID,
			Status:         entry.Status,
			OfferExpiresAt: entry.OfferExpiresAt,
		}
		return nil
	})
	if err != nil {
		return models.JoinResult{}, e.reject(eventID, "join", err)
	}

	e.metrics.TrackJoin(eventID, result.Status)
	slog.Info("Customer joined waiting list", "event_id", eventID, "customer_id", customerID, "entry_id", result.EntryID, "status", result.Status)
	e.apply(ctx, &fx)
	return result, nil
}

// CancelWaitingListEntry gives up a WAITING or OFFERED entry. A released offer
// is handed to the next waiting customer. An empty customerID skips the owner check.
func (e *Engine) CancelWaitingListEntry(ctx context.Context, entryID, customerID string) error {
	eventID, err := e.store.EventForEntry(ctx, entryID)
	if err != nil {
		return err
	}

	var fx effects
	_, err = e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		now := e.clock.Now()

		entry, ok := state.Entries[entryID]
		if !ok {
			return status.NotFound("waiting list entry", entryID)
		}
		if customerID != "" && entry.CustomerID != customerID {
			return fmt.Errorf("entry %s belongs to another customer: %w", entryID, status.ErrOfferExpiredOrInvalid)
		}
		if !canTransition(entry.Status, models.EntryExpired) {
			return fmt.Errorf("entry %s is %s: %w", entryID, entry.Status, status.ErrOfferExpiredOrInvalid)
		}

		expireEntry(entry, now)
		slog.Info("Waiting list entry cancelled", "event_id", eventID, "entry_id", entryID, "customer_id", entry.CustomerID)
		e.settle(state, now, &fx)
		return nil
	})
	if err != nil {
		return e.reject(eventID, "cancel", err)
	}

	e.apply(ctx, &fx)
	return nil
}

// EntryStatus reports an entry and its FIFO position when still waiting.
func (e *Engine) EntryStatus(ctx context.Context, entryID string) (models.EntryPosition, error) {
	eventID, err := e.store.EventForEntry(ctx, entryID)
	if err != nil {
		return models.EntryPosition{}, err
	}
	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return models.EntryPosition{}, err
	}
	entry, ok := state.Entries[entryID]
	if !ok {
		return models.EntryPosition{}, status.NotFound("waiting list entry", entryID)
	}
	return models.EntryPosition{Entry: *entry, Position: queuePosition(state, entryID)}, nil
}

// processQueue promotes WAITING entries, oldest sequence first, while the event
// pool has a free unit.
func (e *Engine) processQueue(state *models.EventState, now time.Time, fx *effects) {
	if state.Event.Cancelled {
		return
	}
	for _, entry := range state.WaitingInOrder() {
		caps := newCapacityStore(state, now, entry.ID)
		hold := models.PoolDeduction{Pool: models.EventPool(state.Event.ID), Quantity: 1}
		if err := caps.TryReserve(hold); err != nil {
			return
		}
		offerEntry(entry, now, e.offerWindow)
		caps.Release(hold)
		fx.offers = append(fx.offers, *entry)
	}
}
