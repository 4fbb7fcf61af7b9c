package services

import (
	"math"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

// capacityStore is the counter view of one event aggregate. Reservations are
// tracked per pool until they are committed as sales or released. It is only
// ever used inside a serialized update, so it needs no locking of its own.
type capacityStore struct {
	state   *models.EventState
	now     time.Time
	holder  string
	pending map[models.PoolID]int
}

// newCapacityStore builds the view. holder names a waiting-list entry whose
// own offer should not count against the event pool.
func newCapacityStore(state *models.EventState, now time.Time, holder string) *capacityStore {
	return &capacityStore{
		state:   state,
		now:     now,
		holder:  holder,
		pending: make(map[models.PoolID]int),
	}
}

// Available returns units still free in pool, and the pool's total size.
func (c *capacityStore) Available(pool models.PoolID) (int, int, error) {
	s := c.state
	switch pool.Kind() {
	case models.PoolKindEvent:
		if pool.Ref() != s.Event.ID {
			return 0, 0, status.NotFound("pool", string(pool))
		}
		offers := 0
		for _, entry := range s.Entries {
			if entry.ID != c.holder && entry.ActiveOffer(c.now) {
				offers++
			}
		}
		total := s.NominalCapacity()
		return total - s.Event.SoldUnits - offers, total, nil

	case models.PoolKindTicketType:
		tt, ok := s.TicketTypes[pool.Ref()]
		if !ok {
			return 0, 0, status.NotFound("ticket type", pool.Ref())
		}
		return tt.AvailableQuantity(), tt.AllocatedQuantity, nil

	case models.PoolKindTable:
		t, ok := s.Tables[pool.Ref()]
		if !ok {
			return 0, 0, status.NotFound("table", pool.Ref())
		}
		if t.MaxTables == 0 {
			return math.MaxInt32, 0, nil
		}
		return t.Available(), t.MaxTables, nil

	case models.PoolKindBundle:
		b, ok := s.Bundles[pool.Ref()]
		if !ok {
			return 0, 0, status.NotFound("bundle", pool.Ref())
		}
		if b.MaxQuantity == 0 {
			return math.MaxInt32, 0, nil
		}
		return b.Available(), b.MaxQuantity, nil
	}
	return 0, 0, status.NotFound("pool", string(pool))
}

// TryReserve claims quantity units of the deduction's pool or rejects with an
// InventoryError naming the pool.
func (c *capacityStore) TryReserve(d models.PoolDeduction) error {
	available, _, err := c.Available(d.Pool)
	if err != nil {
		return err
	}
	free := available - c.pending[d.Pool]
	if free < d.Quantity {
		if free < 0 {
			free = 0
		}
		return &status.InventoryError{Pool: string(d.Pool), Requested: d.Quantity, Available: free}
	}
	c.pending[d.Pool] += d.Quantity
	return nil
}

func (c *capacityStore) Release(d models.PoolDeduction) {
	c.pending[d.Pool] -= d.Quantity
	if c.pending[d.Pool] <= 0 {
		delete(c.pending, d.Pool)
	}
}

// CommitSale turns a reservation into sold units on the pool's counters.
func (c *capacityStore) CommitSale(d models.PoolDeduction) {
	c.Release(d)

	s := c.state
	switch d.Pool.Kind() {
	case models.PoolKindEvent:
		s.Event.SoldUnits += d.Quantity
	case models.PoolKindTicketType:
		tt := s.TicketTypes[d.Pool.Ref()]
		switch d.Usage {
		case models.UsageTable:
			tt.ReservedToTables += d.Quantity
		case models.UsageBundle:
			tt.ReservedToBundles += d.Quantity
		default:
			tt.SoldCount += d.Quantity
		}
	case models.PoolKindTable:
		s.Tables[d.Pool.Ref()].SoldCount += d.Quantity
	case models.PoolKindBundle:
		s.Bundles[d.Pool.Ref()].SoldCount += d.Quantity
	}
}

// ReserveAll reserves every deduction in order. On the first failure it
// releases what it already holds and returns that failure.
func (c *capacityStore) ReserveAll(deductions []models.PoolDeduction) error {
	for i, d := range deductions {
		if err := c.TryReserve(d); err != nil {
			for _, held := range deductions[:i] {
				c.Release(held)
			}
			return err
		}
	}
	return nil
}

func (c *capacityStore) CommitAll(deductions []models.PoolDeduction) {
	for _, d := range deductions {
		c.CommitSale(d)
	}
}
