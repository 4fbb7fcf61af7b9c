package models

import (
	"time"
)

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "WAITING"
	EntryOffered   EntryStatus = "OFFERED"
	EntryPurchased EntryStatus = "PURCHASED"
	EntryExpired   EntryStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s EntryStatus) Terminal() bool {
	return s == EntryPurchased || s == EntryExpired
}

type WaitingListEntry struct {
	ID             string      `json:"id"`
	EventID        string      `json:"event_id"`
	CustomerID     string      `json:"customer_id"`
	Seq            int64       `json:"seq"`
	Status         EntryStatus `json:"status"`
	OfferExpiresAt *time.Time  `json:"offer_expires_at,omitempty"`
	OfferedAt      *time.Time  `json:"offered_at,omitempty"`
	JoinedAt       time.Time   `json:"joined_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// ActiveOffer reports whether the entry holds an offer that has not run out at now.
func (e *WaitingListEntry) ActiveOffer(now time.Time) bool {
	return e.Status == EntryOffered && e.OfferExpiresAt != nil && now.Before(*e.OfferExpiresAt)
}

type JoinResult struct {
	EntryID        string      `json:"entry_id"`
	Status         EntryStatus `json:"status"`
	OfferExpiresAt *time.Time  `json:"offer_expires_at,omitempty"`
}

type EntryPosition struct {
	Entry    WaitingListEntry `json:"entry"`
	Position int              `json:"position"` // 1-based among WAITING entries, 0 otherwise
}

type Availability struct {
	EventID      string `json:"event_id"`
	PoolID       PoolID `json:"pool_id"`
	Available    int    `json:"available"`
	Total        int    `json:"total"`
	Sold         int    `json:"sold"`
	ActiveOffers int    `json:"active_offers"`
}
