package models

import (
	"sort"
	"time"
)

// EventState is the per-event aggregate. Every counter the engine mutates lives
// here so that one serialized write covers a whole operation.
type EventState struct {
	Event            Event                        `json:"event"`
	TicketTypes      map[string]*TicketType       `json:"ticket_types"`
	Tables           map[string]*Table            `json:"tables"`
	Bundles          map[string]*Bundle           `json:"bundles"`
	Affiliates       map[string]*Affiliate        `json:"affiliates"`
	Entries          map[string]*WaitingListEntry `json:"entries"`
	Purchases        map[string]*Purchase         `json:"purchases"`
	Tickets          map[string]*Ticket           `json:"tickets"`
	NextSeq          int64                        `json:"next_seq"`
	NextTicketNumber int64                        `json:"next_ticket_number"`
	Version          int64                        `json:"version"`
}

func NewEventState(event Event) *EventState {
	return &EventState{
		Event:       event,
		TicketTypes: map[string]*TicketType{},
		Tables:      map[string]*Table{},
		Bundles:     map[string]*Bundle{},
		Affiliates:  map[string]*Affiliate{},
		Entries:     map[string]*WaitingListEntry{},
		Purchases:   map[string]*Purchase{},
		Tickets:     map[string]*Ticket{},
	}
}

// Normalize replaces nil maps left behind by decoding.
func (s *EventState) Normalize() {
	if s.TicketTypes == nil {
		s.TicketTypes = map[string]*TicketType{}
	}
	if s.Tables == nil {
		s.Tables = map[string]*Table{}
	}
	if s.Bundles == nil {
		s.Bundles = map[string]*Bundle{}
	}
	if s.Affiliates == nil {
		s.Affiliates = map[string]*Affiliate{}
	}
	if s.Entries == nil {
		s.Entries = map[string]*WaitingListEntry{}
	}
	if s.Purchases == nil {
		s.Purchases = map[string]*Purchase{}
	}
	if s.Tickets == nil {
		s.Tickets = map[string]*Ticket{}
	}
}

func (s *EventState) Clone() *EventState {
	c := NewEventState(s.Event)
	c.NextSeq = s.NextSeq
	c.NextTicketNumber = s.NextTicketNumber
	c.Version = s.Version

	for id, tt := range s.TicketTypes {
		v := *tt
		v.EarlyBirdEndsAt = copyTime(tt.EarlyBirdEndsAt)
		c.TicketTypes[id] = &v
	}
	for id, t := range s.Tables {
		v := *t
		c.Tables[id] = &v
	}
	for id, b := range s.Bundles {
		v := *b
		v.Items = append([]BundleItem(nil), b.Items...)
		c.Bundles[id] = &v
	}
	for code, a := range s.Affiliates {
		v := *a
		c.Affiliates[code] = &v
	}
	for id, e := range s.Entries {
		v := *e
		v.OfferExpiresAt = copyTime(e.OfferExpiresAt)
		v.OfferedAt = copyTime(e.OfferedAt)
		c.Entries[id] = &v
	}
	for id, p := range s.Purchases {
		v := *p
		v.Pools = append([]PoolDeduction(nil), p.Pools...)
		v.TicketIDs = append([]string(nil), p.TicketIDs...)
		c.Purchases[id] = &v
	}
	for id, t := range s.Tickets {
		v := *t
		v.UsedAt = copyTime(t.UsedAt)
		c.Tickets[id] = &v
	}
	return c
}

// NominalCapacity is the number of units the waiting list admits against.
// A declared capacity never exceeds what the ticket types can actually sell.
func (s *EventState) NominalCapacity() int {
	total := 0
	for _, tt := range s.TicketTypes {
		total += tt.AllocatedQuantity
	}
	if s.Event.Capacity > 0 && s.Event.Capacity < total {
		return s.Event.Capacity
	}
	return total
}

func (s *EventState) ActiveOffers(now time.Time) int {
	n := 0
	for _, e := range s.Entries {
		if e.ActiveOffer(now) {
			n++
		}
	}
	return n
}

// HasSales reports whether any pool of the event has sold units.
func (s *EventState) HasSales() bool {
	if s.Event.SoldUnits > 0 {
		return true
	}
	for _, tt := range s.TicketTypes {
		if tt.ConsumedQuantity() > 0 {
			return true
		}
	}
	for _, t := range s.Tables {
		if t.SoldCount > 0 {
			return true
		}
	}
	for _, b := range s.Bundles {
		if b.SoldCount > 0 {
			return true
		}
	}
	return false
}

// ActiveEntryFor returns the customer's non-EXPIRED entry, if any.
func (s *EventState) ActiveEntryFor(customerID string) *WaitingListEntry {
	for _, e := range s.Entries {
		if e.CustomerID == customerID && e.Status != EntryExpired {
			return e
		}
	}
	return nil
}

// WaitingInOrder lists WAITING entries by ascending sequence number.
func (s *EventState) WaitingInOrder() []*WaitingListEntry {
	var waiting []*WaitingListEntry
	for _, e := range s.Entries {
		if e.Status == EntryWaiting {
			waiting = append(waiting, e)
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].Seq < waiting[j].Seq })
	return waiting
}

func (s *EventState) OfferedEntries() []*WaitingListEntry {
	var offered []*WaitingListEntry
	for _, e := range s.Entries {
		if e.Status == EntryOffered {
			offered = append(offered, e)
		}
	}
	sort.Slice(offered, func(i, j int) bool { return offered[i].Seq < offered[j].Seq })
	return offered
}

func (s *EventState) TicketByCode(code string) *Ticket {
	for _, t := range s.Tickets {
		if t.Code == code {
			return t
		}
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
