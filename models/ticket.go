package models

import (
	"time"
)

type TicketStatus string

const (
	TicketValid TicketStatus = "VALID"
	TicketUsed  TicketStatus = "USED"
)

type Ticket struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Number       int64        `json:"number"`
	EventID      string       `json:"event_id"`
	PurchaseID   string       `json:"purchase_id"`
	CustomerID   string       `json:"customer_id"`
	TicketTypeID string       `json:"ticket_type_id"`
	TableID      string       `json:"table_id,omitempty"`
	BundleID     string       `json:"bundle_id,omitempty"`
	DayID        string       `json:"day_id,omitempty"`
	SeatLabel    string       `json:"seat_label,omitempty"`
	Status       TicketStatus `json:"status"` // VALID, USED
	IssuedAt     time.Time    `json:"issued_at"`
	UsedAt       *time.Time   `json:"used_at,omitempty"`
}
