// Package records mirrors completed purchases into pocketbase collections
// and serves purchase history from them.
package records

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-engine/internal/services"
	"ticket-engine/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const (
	PurchasesCollection = "purchases"
	TicketsCollection   = "tickets"
)

type Store struct {
	app core.App
}

func NewStore(app core.App) *Store {
	return &Store{app: app}
}

// Notify writes the purchase and its tickets in one transaction. Other
// notification types are ignored.
func (s *Store) Notify(ctx context.Context, n services.Notification) error {
	if n.Type != services.NotificationPurchaseCompleted || n.Purchase == nil {
		return nil
	}

	err := s.app.RunInTransaction(func(txApp core.App) error {
		purchases, err := txApp.FindCollectionByNameOrId(PurchasesCollection)
		if err != nil {
			return err
		}
		tickets, err := txApp.FindCollectionByNameOrId(TicketsCollection)
		if err != nil {
			return err
		}

		rec := core.NewRecord(purchases)
		rec.Load(purchaseFields(*n.Purchase))
		if err := txApp.SaveWithContext(ctx, rec); err != nil {
			return fmt.Errorf("save purchase %s: %w", n.Purchase.ID, err)
		}

		for _, t := range n.Tickets {
			tr := core.NewRecord(tickets)
			tr.Load(ticketFields(t))
			if err := txApp.SaveWithContext(ctx, tr); err != nil {
				return fmt.Errorf("save ticket %s: %w", t.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to record purchase", "purchase_id", n.Purchase.ID, "event_id", n.EventID, "error", err)
		return err
	}
	return nil
}

func purchaseFields(p models.Purchase) map[string]any {
	return map[string]any{
		"purchase_id":    p.ID,
		"event_id":       p.EventID,
		"customer_id":    p.CustomerID,
		"entry_id":       p.EntryID,
		"target_kind":    string(p.Target.Kind),
		"target_id":      p.Target.ID,
		"quantity":       p.Quantity,
		"units":          p.Units,
		"buyer":          p.Buyer,
		"payment_ref":    p.PaymentRef,
		"payment_method": string(p.PaymentMethod),
		"total_amount":   p.TotalAmount.StringFixed(2),
		"referral_code":  p.ReferralCode,
		"commission":     p.Commission.StringFixed(2),
		"purchased_at":   p.CreatedAt,
	}
}

func ticketFields(t models.Ticket) map[string]any {
	return map[string]any{
		"ticket_id":      t.ID,
		"code":           t.Code,
		"number":         t.Number,
		"event_id":       t.EventID,
		"purchase_id":    t.PurchaseID,
		"customer_id":    t.CustomerID,
		"ticket_type_id": t.TicketTypeID,
		"table_id":       t.TableID,
		"bundle_id":      t.BundleID,
		"day_id":         t.DayID,
		"seat_label":     t.SeatLabel,
	}
}

type PurchaseSummary struct {
	PurchaseID  string          `db:"purchase_id" json:"purchase_id"`
	EventID     string          `db:"event_id" json:"event_id"`
	TargetKind  string          `db:"target_kind" json:"target_kind"`
	TargetID    string          `db:"target_id" json:"target_id"`
	Quantity    int             `db:"quantity" json:"quantity"`
	TotalAmount string          `db:"total_amount" json:"total_amount"`
	PaymentRef  string          `db:"payment_ref" json:"payment_ref"`
	PurchasedAt string          `db:"purchased_at" json:"purchased_at"`
	Tickets     []TicketSummary `db:"-" json:"tickets"`
}

type TicketSummary struct {
	PurchaseID string `db:"purchase_id" json:"-"`
	Code       string `db:"code" json:"code"`
	Number     int64  `db:"number" json:"number"`
	DayID      string `db:"day_id" json:"day_id,omitempty"`
	SeatLabel  string `db:"seat_label" json:"seat_label,omitempty"`
}

// CustomerPurchases lists a customer's purchases, newest first, with their tickets.
func (s *Store) CustomerPurchases(ctx context.Context, customerID string) ([]PurchaseSummary, error) {
	var purchases []PurchaseSummary
	err := s.app.DB().NewQuery(
		"SELECT purchase_id, event_id, target_kind, target_id, quantity, total_amount, payment_ref, purchased_at " +
			"FROM purchases WHERE customer_id = {:customer} ORDER BY purchased_at DESC",
	).Bind(dbx.Params{"customer": customerID}).WithContext(ctx).All(&purchases)
	if err != nil {
		return nil, fmt.Errorf("query purchases for %s: %w", customerID, err)
	}

	var tickets []TicketSummary
	err = s.app.DB().NewQuery(
		"SELECT purchase_id, code, number, day_id, seat_label " +
			"FROM tickets WHERE customer_id = {:customer} ORDER BY number",
	).Bind(dbx.Params{"customer": customerID}).WithContext(ctx).All(&tickets)
	if err != nil {
		return nil, fmt.Errorf("query tickets for %s: %w", customerID, err)
	}

	return attachTickets(purchases, tickets), nil
}

func attachTickets(purchases []PurchaseSummary, tickets []TicketSummary) []PurchaseSummary {
	byPurchase := make(map[string][]TicketSummary, len(purchases))
	for _, t := range tickets {
		byPurchase[t.PurchaseID] = append(byPurchase[t.PurchaseID], t)
	}
	for i := range purchases {
		purchases[i].Tickets = byPurchase[purchases[i].PurchaseID]
		if purchases[i].Tickets == nil {
			purchases[i].Tickets = []TicketSummary{}
		}
	}
	if purchases == nil {
		purchases = []PurchaseSummary{}
	}
	return purchases
}
