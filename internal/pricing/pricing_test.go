package pricing

import (
	"testing"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogue(earlyBirdEnds time.Time) *models.EventState {
	s := models.NewEventState(models.Event{ID: "evt-1"})
	s.TicketTypes["ga"] = &models.TicketType{
		ID:              "ga",
		Price:           decimal.NewFromInt(40),
		EarlyBirdPrice:  decimal.RequireFromString("29.99"),
		EarlyBirdEndsAt: &earlyBirdEnds,
	}
	s.Tables["vip"] = &models.Table{ID: "vip", SourceTypeID: "ga", SeatCount: 8, Price: decimal.NewFromInt(300)}
	s.Bundles["weekend"] = &models.Bundle{ID: "weekend", BundlePrice: decimal.NewFromInt(55)}
	return s
}

func TestQuoteSale(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := catalogue(now.Add(24 * time.Hour))

	tests := []struct {
		name      string
		target    models.SaleTarget
		quantity  int
		at        time.Time
		total     string
		earlyBird bool
	}{
		{"early bird", models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"}, 3, now, "89.97", true},
		{"early bird over", models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"}, 3, now.Add(48 * time.Hour), "120", false},
		{"early bird ends exactly", models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"}, 1, now.Add(24 * time.Hour), "40", false},
		{"table", models.SaleTarget{Kind: models.SaleTable, ID: "vip"}, 2, now, "600", false},
		{"bundle", models.SaleTarget{Kind: models.SaleBundle, ID: "weekend"}, 1, now, "55", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := QuoteSale(s, tt.target, tt.quantity, tt.at)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(q.Total), "got %s", q.Total)
			assert.Equal(t, tt.earlyBird, q.EarlyBird)
		})
	}
}

func TestQuoteSale_Errors(t *testing.T) {
	s := catalogue(time.Now())

	_, err := QuoteSale(s, models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"}, 0, time.Now())
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = QuoteSale(s, models.SaleTarget{Kind: models.SaleBundle, ID: "monday"}, 1, time.Now())
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = QuoteSale(s, models.SaleTarget{Kind: "seat", ID: "a1"}, 1, time.Now())
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestCoversQuote(t *testing.T) {
	q := Quote{Total: decimal.NewFromInt(100)}

	card := models.PaymentConfirmation{Method: models.PaymentCard, Amount: decimal.NewFromInt(100)}
	assert.NoError(t, CoversQuote(card, q))

	card.Amount = decimal.RequireFromString("99.99")
	assert.ErrorIs(t, CoversQuote(card, q), status.ErrInvalidArgument)

	comp := models.PaymentConfirmation{Method: models.PaymentComplimentary}
	assert.NoError(t, CoversQuote(comp, q))
}
