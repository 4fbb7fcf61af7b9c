package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"` // 0 means the sum of ticket type allocations
	SoldUnits int       `json:"sold_units"`
	Cancelled bool      `json:"cancelled"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketType struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	DayID             string          `json:"day_id,omitempty"`
	Name              string          `json:"name"`
	AllocatedQuantity int             `json:"allocated_quantity"`
	SoldCount         int             `json:"sold_count"`
	ReservedToTables  int             `json:"reserved_to_tables"`
	ReservedToBundles int             `json:"reserved_to_bundles"`
	Price             decimal.Decimal `json:"price"`
	EarlyBirdPrice    decimal.Decimal `json:"early_bird_price"`
	EarlyBirdEndsAt   *time.Time      `json:"early_bird_ends_at,omitempty"`
	IsActive          bool            `json:"is_active"`
}

// AvailableQuantity is what is left for individual, table or bundle sales.
func (t *TicketType) AvailableQuantity() int {
	return t.AllocatedQuantity - t.SoldCount - t.ReservedToTables - t.ReservedToBundles
}

// ConsumedQuantity counts every unit already taken out of the pool.
func (t *TicketType) ConsumedQuantity() int {
	return t.SoldCount + t.ReservedToTables + t.ReservedToBundles
}

type Table struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	SourceTypeID string          `json:"source_type_id"`
	SeatCount    int             `json:"seat_count"`
	MaxTables    int             `json:"max_tables"` // 0 means bounded only by the source pool
	SoldCount    int             `json:"sold_count"`
	Price        decimal.Decimal `json:"price"`
	IsActive     bool            `json:"is_active"`
}

// Available reports how many more tables may be sold, ignoring the source pool.
// -1 means unbounded.
func (t *Table) Available() int {
	if t.MaxTables == 0 {
		return -1
	}
	return t.MaxTables - t.SoldCount
}

type BundleItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type Bundle struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Items       []BundleItem    `json:"items"`
	BundlePrice decimal.Decimal `json:"bundle_price"`
	MaxQuantity int             `json:"max_quantity"` // 0 means unlimited
	SoldCount   int             `json:"sold_count"`
	IsActive    bool            `json:"is_active"`
}

// UnitsPerBundle is the number of tickets issued for one bundle.
func (b *Bundle) UnitsPerBundle() int {
	n := 0
	for _, item := range b.Items {
		n += item.Quantity
	}
	return n
}

func (b *Bundle) Available() int {
	if b.MaxQuantity == 0 {
		return -1
	}
	return b.MaxQuantity - b.SoldCount
}

type Affiliate struct {
	ReferralCode        string          `json:"referral_code"`
	EventID             string          `json:"event_id"`
	Name                string          `json:"name"`
	CommissionPerTicket decimal.Decimal `json:"commission_per_ticket"`
	TotalSold           int             `json:"total_sold"`
	TotalEarned         decimal.Decimal `json:"total_earned"`
	IsActive            bool            `json:"is_active"`
}

// EventInventory is the authoring shape of an event: everything an operator
// declares before sales open.
type EventInventory struct {
	Event       Event        `json:"event"`
	TicketTypes []TicketType `json:"ticket_types"`
	Tables      []Table      `json:"tables"`
	Bundles     []Bundle     `json:"bundles"`
	Affiliates  []Affiliate  `json:"affiliates"`
}
