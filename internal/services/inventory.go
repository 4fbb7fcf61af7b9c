package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/shopspring/decimal"
)

// RegisterEvent installs a new event aggregate from its declared inventory.
func (e *Engine) RegisterEvent(ctx context.Context, inv models.EventInventory) (*models.EventState, error) {
	state, err := buildState(inv)
	if err != nil {
		return nil, err
	}
	state.Event.CreatedAt = e.clock.Now()

	if err := e.store.Create(ctx, state); err != nil {
		return nil, err
	}
	slog.Info("Event registered", "event_id", state.Event.ID, "capacity", state.NominalCapacity(),
		"ticket_types", len(state.TicketTypes), "tables", len(state.Tables), "bundles", len(state.Bundles))
	return state, nil
}

func buildState(inv models.EventInventory) (*models.EventState, error) {
	ev := inv.Event
	if ev.ID == "" {
		return nil, status.Invalid("event id is required")
	}
	if ev.Capacity < 0 {
		return nil, status.Invalid("event capacity must not be negative")
	}
	ev.SoldUnits = 0
	ev.Cancelled = false

	state := models.NewEventState(ev)

	for _, tt := range inv.TicketTypes {
		if tt.ID == "" {
			return nil, status.Invalid("ticket type id is required")
		}
		if _, dup := state.TicketTypes[tt.ID]; dup {
			return nil, status.Invalid("ticket type %s declared twice", tt.ID)
		}
		if tt.AllocatedQuantity < 0 {
			return nil, status.Invalid("ticket type %s: allocated quantity must not be negative", tt.ID)
		}
		if tt.Price.IsNegative() || tt.EarlyBirdPrice.IsNegative() {
			return nil, status.Invalid("ticket type %s: price must not be negative", tt.ID)
		}
		v := tt
		v.EventID = ev.ID
		v.SoldCount, v.ReservedToTables, v.ReservedToBundles = 0, 0, 0
		state.TicketTypes[v.ID] = &v
	}

	for _, t := range inv.Tables {
		if t.ID == "" {
			return nil, status.Invalid("table id is required")
		}
		if _, dup := state.Tables[t.ID]; dup {
			return nil, status.Invalid("table %s declared twice", t.ID)
		}
		if t.SeatCount <= 0 {
			return nil, status.Invalid("table %s: seat count must be positive", t.ID)
		}
		if t.MaxTables < 0 {
			return nil, status.Invalid("table %s: max tables must not be negative", t.ID)
		}
		if _, ok := state.TicketTypes[t.SourceTypeID]; !ok {
			return nil, status.Invalid("table %s: unknown source ticket type %q", t.ID, t.SourceTypeID)
		}
		v := t
		v.EventID = ev.ID
		v.SoldCount = 0
		state.Tables[v.ID] = &v
	}

	for _, b := range inv.Bundles {
		if b.ID == "" {
			return nil, status.Invalid("bundle id is required")
		}
		if _, dup := state.Bundles[b.ID]; dup {
			return nil, status.Invalid("bundle %s declared twice", b.ID)
		}
		if len(b.Items) == 0 {
			return nil, status.Invalid("bundle %s has no items", b.ID)
		}
		if b.MaxQuantity < 0 {
			return nil, status.Invalid("bundle %s: max quantity must not be negative", b.ID)
		}
		for _, item := range b.Items {
			if item.Quantity <= 0 {
				return nil, status.Invalid("bundle %s: item quantity must be positive", b.ID)
			}
			if _, ok := state.TicketTypes[item.TicketTypeID]; !ok {
				return nil, status.Invalid("bundle %s: unknown ticket type %q", b.ID, item.TicketTypeID)
			}
		}
		v := b
		v.EventID = ev.ID
		v.SoldCount = 0
		v.Items = append([]models.BundleItem(nil), b.Items...)
		state.Bundles[v.ID] = &v
	}

	for _, a := range inv.Affiliates {
		if a.ReferralCode == "" {
			return nil, status.Invalid("affiliate referral code is required")
		}
		if _, dup := state.Affiliates[a.ReferralCode]; dup {
			return nil, status.Invalid("referral code %s declared twice", a.ReferralCode)
		}
		if a.CommissionPerTicket.IsNegative() {
			return nil, status.Invalid("referral code %s: commission must not be negative", a.ReferralCode)
		}
		v := a
		v.EventID = ev.ID
		v.TotalSold = 0
		v.TotalEarned = decimal.Zero
		state.Affiliates[v.ReferralCode] = &v
	}

	return state, nil
}

// Snapshot returns a copy of the event aggregate.
func (e *Engine) Snapshot(ctx context.Context, eventID string) (*models.EventState, error) {
	return e.store.Get(ctx, eventID)
}

// CheckAvailability reports the event pool: nominal capacity less sold units
// and live offers.
func (e *Engine) CheckAvailability(ctx context.Context, eventID string) (models.Availability, error) {
	return e.CheckPoolAvailability(ctx, eventID, models.EventPool(eventID))
}

// CheckPoolAvailability reports one pool. Table and bundle pools are bounded by
// their own caps and by what their ticket types can still supply.
func (e *Engine) CheckPoolAvailability(ctx context.Context, eventID string, pool models.PoolID) (models.Availability, error) {
	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return models.Availability{}, err
	}
	return poolAvailability(state, pool, e.clock.Now())
}

// PoolAvailability reports the event pool followed by every other pool, in pool order.
func (e *Engine) PoolAvailability(ctx context.Context, eventID string) ([]models.Availability, error) {
	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	pools := make([]models.PoolID, 0, len(state.TicketTypes)+len(state.Tables)+len(state.Bundles))
	for id := range state.TicketTypes {
		pools = append(pools, models.TicketTypePool(id))
	}
	for id := range state.Tables {
		pools = append(pools, models.TablePool(id))
	}
	for id := range state.Bundles {
		pools = append(pools, models.BundlePool(id))
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i] < pools[j] })
	pools = append([]models.PoolID{models.EventPool(eventID)}, pools...)

	out := make([]models.Availability, 0, len(pools))
	for _, pool := range pools {
		a, err := poolAvailability(state, pool, now)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func poolAvailability(state *models.EventState, pool models.PoolID, now time.Time) (models.Availability, error) {
	caps := newCapacityStore(state, now, "")
	available, total, err := caps.Available(pool)
	if err != nil {
		return models.Availability{}, err
	}

	a := models.Availability{
		EventID:      state.Event.ID,
		PoolID:       pool,
		Total:        total,
		ActiveOffers: state.ActiveOffers(now),
	}

	switch pool.Kind() {
	case models.PoolKindEvent:
		a.Sold = state.Event.SoldUnits
	case models.PoolKindTicketType:
		a.Sold = state.TicketTypes[pool.Ref()].ConsumedQuantity()
	case models.PoolKindTable:
		t := state.Tables[pool.Ref()]
		src := state.TicketTypes[t.SourceTypeID]
		a.Sold = t.SoldCount
		supply := 0
		if src != nil {
			supply = src.AvailableQuantity() / t.SeatCount
		}
		if available > supply {
			available = supply
		}
		if t.MaxTables == 0 {
			a.Total = t.SoldCount + supply
		}
	case models.PoolKindBundle:
		b := state.Bundles[pool.Ref()]
		a.Sold = b.SoldCount
		for _, item := range b.Items {
			supply := 0
			if tt := state.TicketTypes[item.TicketTypeID]; tt != nil {
				supply = tt.AvailableQuantity() / item.Quantity
			}
			if available > supply {
				available = supply
			}
		}
		if b.MaxQuantity == 0 {
			a.Total = b.SoldCount + available
		}
	}

	if available < 0 {
		available = 0
	}
	a.Available = available
	return a, nil
}

// SetEventCapacity changes the declared event capacity. Zero falls back to the
// sum of ticket type allocations. Freed room is offered to waiting customers.
func (e *Engine) SetEventCapacity(ctx context.Context, eventID string, capacity int) error {
	if capacity < 0 {
		return status.Invalid("event capacity must not be negative")
	}

	var fx effects
	_, err := e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		now := e.clock.Now()

		previous := state.Event.Capacity
		state.Event.Capacity = capacity
		if nominal := state.NominalCapacity(); nominal < state.Event.SoldUnits {
			state.Event.Capacity = previous
			return fmt.Errorf("event %s capacity %d, sold %d: %w", eventID, nominal, state.Event.SoldUnits, status.ErrBelowSoldCount)
		}
		e.settle(state, now, &fx)
		return nil
	})
	if err != nil {
		return e.reject(eventID, "set_capacity", err)
	}

	slog.Info("Event capacity changed", "event_id", eventID, "capacity", capacity, "offers", len(fx.offers))
	e.apply(ctx, &fx)
	return nil
}

// SetAllocation changes a ticket type's allocated quantity. It may not drop
// below what the type has already sold, to individuals, tables or bundles.
func (e *Engine) SetAllocation(ctx context.Context, eventID, ticketTypeID string, allocated int) error {
	if allocated < 0 {
		return status.Invalid("allocated quantity must not be negative")
	}

	var fx effects
	_, err := e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		now := e.clock.Now()

		tt, ok := state.TicketTypes[ticketTypeID]
		if !ok {
			return status.NotFound("ticket type", ticketTypeID)
		}
		if allocated < tt.ConsumedQuantity() {
			return fmt.Errorf("ticket type %s allocation %d, sold %d: %w", ticketTypeID, allocated, tt.ConsumedQuantity(), status.ErrBelowSoldCount)
		}
		previous := tt.AllocatedQuantity
		tt.AllocatedQuantity = allocated
		if nominal := state.NominalCapacity(); nominal < state.Event.SoldUnits {
			tt.AllocatedQuantity = previous
			return fmt.Errorf("event %s capacity %d, sold %d: %w", eventID, nominal, state.Event.SoldUnits, status.ErrBelowSoldCount)
		}
		e.settle(state, now, &fx)
		return nil
	})
	if err != nil {
		return e.reject(eventID, "set_allocation", err)
	}

	slog.Info("Ticket type allocation changed", "event_id", eventID, "ticket_type_id", ticketTypeID, "allocated", allocated, "offers", len(fx.offers))
	e.apply(ctx, &fx)
	return nil
}

// CancelEvent stops an event that has not sold anything. Every open entry is
// expired. Cancelling twice is a no-op.
func (e *Engine) CancelEvent(ctx context.Context, eventID string) error {
	var fx effects
	_, err := e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		if state.Event.Cancelled {
			return errNoop
		}
		if state.HasSales() {
			return fmt.Errorf("event %s has sales: %w", eventID, status.ErrBelowSoldCount)
		}

		now := e.clock.Now()
		state.Event.Cancelled = true
		for _, entry := range state.Entries {
			if entry.Status.Terminal() {
				continue
			}
			expireEntry(entry, now)
			fx.cancelled = append(fx.cancelled, *entry)
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return e.reject(eventID, "cancel_event", err)
	}

	slog.Info("Event cancelled", "event_id", eventID, "entries_closed", len(fx.cancelled))
	e.apply(ctx, &fx)
	return nil
}
