package models

import (
	"time"

	"ticket-engine/internal/status"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCard          PaymentMethod = "card"
	PaymentBankTransfer  PaymentMethod = "bank_transfer"
	PaymentComplimentary PaymentMethod = "complimentary"
)

type CardPayment struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type BankTransferPayment struct {
	BankCode      string `json:"bank_code"`
	TransactionID string `json:"transaction_id"`
}

type ComplimentaryPayment struct {
	IssuedBy string `json:"issued_by"`
}

// PaymentConfirmation is a settled payment handed over by the payment subsystem.
// Exactly one of the variant fields matches Method.
type PaymentConfirmation struct {
	Method        PaymentMethod         `json:"method"`
	Reference     string                `json:"reference"`
	Amount        decimal.Decimal       `json:"amount"`
	Card          *CardPayment          `json:"card,omitempty"`
	BankTransfer  *BankTransferPayment  `json:"bank_transfer,omitempty"`
	Complimentary *ComplimentaryPayment `json:"complimentary,omitempty"`
}

func (p PaymentConfirmation) Validate() error {
	if p.Reference == "" {
		return status.Invalid("payment reference is required")
	}
	if p.Amount.IsNegative() {
		return status.Invalid("payment amount must not be negative")
	}

	variants := 0
	for _, set := range []bool{p.Card != nil, p.BankTransfer != nil, p.Complimentary != nil} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return status.Invalid("payment must carry exactly one method detail, got %d", variants)
	}

	switch p.Method {
	case PaymentCard:
		if p.Card == nil {
			return status.Invalid("card payment without card details")
		}
	case PaymentBankTransfer:
		if p.BankTransfer == nil || p.BankTransfer.TransactionID == "" {
			return status.Invalid("bank transfer payment without transaction id")
		}
	case PaymentComplimentary:
		if p.Complimentary == nil {
			return status.Invalid("complimentary payment without issuer")
		}
		if !p.Amount.IsZero() {
			return status.Invalid("complimentary payment must have zero amount")
		}
	default:
		return status.Invalid("unknown payment method %q", p.Method)
	}
	return nil
}

type SaleKind string

const (
	SaleTicketType SaleKind = "ticket_type"
	SaleTable      SaleKind = "table"
	SaleBundle     SaleKind = "bundle"
)

type SaleTarget struct {
	Kind SaleKind `json:"kind"`
	ID   string   `json:"id"`
}

func (t SaleTarget) Validate() error {
	switch t.Kind {
	case SaleTicketType, SaleTable, SaleBundle:
	default:
		return status.Invalid("unknown sale target kind %q", t.Kind)
	}
	if t.ID == "" {
		return status.Invalid("sale target id is required")
	}
	return nil
}

type BuyerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type PurchaseRequest struct {
	EventID      string              `json:"event_id"`
	CustomerID   string              `json:"customer_id"`
	EntryID      string              `json:"entry_id,omitempty"`
	Target       SaleTarget          `json:"target"`
	Quantity     int                 `json:"quantity"`
	Buyer        BuyerContact        `json:"buyer"`
	Payment      PaymentConfirmation `json:"payment"`
	ReferralCode string              `json:"referral_code,omitempty"`
}

func (r PurchaseRequest) Validate() error {
	if r.EventID == "" {
		return status.Invalid("event id is required")
	}
	if r.CustomerID == "" {
		return status.Invalid("customer id is required")
	}
	if r.Quantity <= 0 {
		return status.Invalid("quantity must be positive")
	}
	if err := r.Target.Validate(); err != nil {
		return err
	}
	return r.Payment.Validate()
}

type Purchase struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	CustomerID    string          `json:"customer_id"`
	EntryID       string          `json:"entry_id,omitempty"`
	Target        SaleTarget      `json:"target"`
	Quantity      int             `json:"quantity"`
	Units         int             `json:"units"`
	Pools         []PoolDeduction `json:"pools"`
	Buyer         BuyerContact    `json:"buyer"`
	PaymentRef    string          `json:"payment_ref"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ReferralCode  string          `json:"referral_code,omitempty"`
	Commission    decimal.Decimal `json:"commission"`
	TicketIDs     []string        `json:"ticket_ids"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PurchaseResult struct {
	PurchaseID string   `json:"purchase_id"`
	Tickets    []Ticket `json:"tickets"`
}
