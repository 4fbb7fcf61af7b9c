package records

import (
	"testing"
	"time"

	"ticket-engine/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseFields(t *testing.T) {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	fields := purchaseFields(models.Purchase{
		ID:            "pur-1",
		EventID:       "evt-1",
		CustomerID:    "alice",
		Target:        models.SaleTarget{Kind: models.SaleBundle, ID: "weekend"},
		Quantity:      2,
		Units:         4,
		PaymentRef:    "pay-1",
		PaymentMethod: models.PaymentCard,
		TotalAmount:   decimal.NewFromInt(100),
		ReferralCode:  "FRIEND",
		Commission:    decimal.RequireFromString("5"),
		CreatedAt:     at,
	})

	assert.Equal(t, "pur-1", fields["purchase_id"])
	assert.Equal(t, "bundle", fields["target_kind"])
	assert.Equal(t, "weekend", fields["target_id"])
	assert.Equal(t, "100.00", fields["total_amount"])
	assert.Equal(t, "5.00", fields["commission"])
	assert.Equal(t, "card", fields["payment_method"])
	assert.Equal(t, at, fields["purchased_at"])
}

func TestTicketFields(t *testing.T) {
	fields := ticketFields(models.Ticket{
		ID:           "tkt-1",
		Code:         "AB12CD34",
		Number:       7,
		EventID:      "evt-1",
		PurchaseID:   "pur-1",
		CustomerID:   "alice",
		TicketTypeID: "sat",
		BundleID:     "weekend",
		DayID:        "day-1",
		Status:       models.TicketValid,
	})

	assert.Equal(t, "AB12CD34", fields["code"])
	assert.Equal(t, int64(7), fields["number"])
	assert.Equal(t, "day-1", fields["day_id"])
	assert.Equal(t, "weekend", fields["bundle_id"])
	assert.NotContains(t, fields, "status")
}

func TestAttachTickets(t *testing.T) {
	purchases := []PurchaseSummary{{PurchaseID: "pur-2"}, {PurchaseID: "pur-1"}}
	tickets := []TicketSummary{
		{PurchaseID: "pur-1", Code: "AAAA1111", Number: 1},
		{PurchaseID: "pur-1", Code: "BBBB2222", Number: 2},
	}

	out := attachTickets(purchases, tickets)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Tickets)
	assert.NotNil(t, out[0].Tickets)
	require.Len(t, out[1].Tickets, 2)
	assert.Equal(t, "BBBB2222", out[1].Tickets[1].Code)

	assert.Equal(t, []PurchaseSummary{}, attachTickets(nil, nil))
}
