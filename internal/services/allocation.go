package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"
	"ticket-engine/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ticketSlot describes one ticket a sale will issue.
type ticketSlot struct {
	typeID    string
	tableID   string
	bundleID  string
	dayID     string
	seatLabel string
}

// salePlan is what a sale target resolves to: the pool deductions it needs and
// the tickets it issues, one per unit.
type salePlan struct {
	deductions []models.PoolDeduction
	slots      []ticketSlot
}

func resolveTarget(state *models.EventState, target models.SaleTarget, quantity int) (salePlan, error) {
	var plan salePlan

	switch target.Kind {
	case models.SaleTicketType:
		tt, ok := state.TicketTypes[target.ID]
		if !ok {
			return plan, status.NotFound("ticket type", target.ID)
		}
		if !tt.IsActive {
			return plan, status.Invalid("ticket type %s is not on sale", tt.ID)
		}
		plan.deductions = append(plan.deductions, models.PoolDeduction{Pool: models.TicketTypePool(tt.ID), Quantity: quantity})
		for i := 0; i < quantity; i++ {
			plan.slots = append(plan.slots, ticketSlot{typeID: tt.ID, dayID: tt.DayID})
		}

	case models.SaleTable:
		table, ok := state.Tables[target.ID]
		if !ok {
			return plan, status.NotFound("table", target.ID)
		}
		if !table.IsActive {
			return plan, status.Invalid("table %s is not on sale", table.ID)
		}
		src, ok := state.TicketTypes[table.SourceTypeID]
		if !ok {
			return plan, status.NotFound("ticket type", table.SourceTypeID)
		}
		plan.deductions = append(plan.deductions,
			models.PoolDeduction{Pool: models.TablePool(table.ID), Quantity: quantity},
			models.PoolDeduction{Pool: models.TicketTypePool(src.ID), Usage: models.UsageTable, Quantity: quantity * table.SeatCount},
		)
		for n := 0; n < quantity; n++ {
			label := table.Name
			if quantity > 1 {
				label = fmt.Sprintf("%s #%d", table.Name, table.SoldCount+n+1)
			}
			for seat := 1; seat <= table.SeatCount; seat++ {
				plan.slots = append(plan.slots, ticketSlot{
					typeID:    src.ID,
					tableID:   table.ID,
					dayID:     src.DayID,
					seatLabel: fmt.Sprintf("%s, Seat %d", label, seat),
				})
			}
		}

	case models.SaleBundle:
		bundle, ok := state.Bundles[target.ID]
		if !ok {
			return plan, status.NotFound("bundle", target.ID)
		}
		if !bundle.IsActive {
			return plan, status.Invalid("bundle %s is not on sale", bundle.ID)
		}
		plan.deductions = append(plan.deductions, models.PoolDeduction{Pool: models.BundlePool(bundle.ID), Quantity: quantity})
		for _, item := range bundle.Items {
			tt, ok := state.TicketTypes[item.TicketTypeID]
			if !ok {
				return plan, status.NotFound("ticket type", item.TicketTypeID)
			}
			plan.deductions = append(plan.deductions, models.PoolDeduction{
				Pool:     models.TicketTypePool(tt.ID),
				Usage:    models.UsageBundle,
				Quantity: quantity * item.Quantity,
			})
		}
		for n := 0; n < quantity; n++ {
			for _, item := range bundle.Items {
				tt := state.TicketTypes[item.TicketTypeID]
				for i := 0; i < item.Quantity; i++ {
					plan.slots = append(plan.slots, ticketSlot{typeID: tt.ID, bundleID: bundle.ID, dayID: tt.DayID})
				}
			}
		}

	default:
		return plan, status.Invalid("unknown sale target kind %q", target.Kind)
	}

	return plan, nil
}

// lookupAffiliate finds the affiliate a referral code earns commission for.
// Unknown and inactive codes earn nothing and do not block the sale.
func lookupAffiliate(state *models.EventState, code string) (*models.Affiliate, bool) {
	affiliate, ok := state.Affiliates[code]
	if !ok || !affiliate.IsActive || affiliate.EventID != state.Event.ID {
		return nil, false
	}
	return affiliate, true
}

// Purchase turns a settled payment into tickets. When EntryID is set the
// customer's live offer gates the sale; otherwise availability is checked
// directly. Every pool is reserved in pool order with the event pool last, and
// either all of them are committed or none are.
func (e *Engine) Purchase(ctx context.Context, req models.PurchaseRequest) (models.PurchaseResult, error) {
	if err := req.Validate(); err != nil {
		return models.PurchaseResult{}, err
	}

	var (
		fx     effects
		result models.PurchaseResult
	)
	_, err := e.store.Update(ctx, req.EventID, func(state *models.EventState) error {
		fx.reset()
		result = models.PurchaseResult{}
		now := e.clock.Now()

		if prior := purchaseByPaymentRef(state, req.Payment.Reference); prior != nil {
			if prior.CustomerID != req.CustomerID {
				return status.Invalid("payment reference %s already settled purchase %s", req.Payment.Reference, prior.ID)
			}
			result = models.PurchaseResult{PurchaseID: prior.ID, Tickets: purchaseTickets(state, prior)}
			return errNoop
		}
		if state.Event.Cancelled {
			return fmt.Errorf("purchase for event %s: %w", req.EventID, status.ErrEventCancelled)
		}
		e.settle(state, now, &fx)

		var entry *models.WaitingListEntry
		if req.EntryID != "" {
			var ok bool
			if entry, ok = state.Entries[req.EntryID]; !ok {
				return status.NotFound("waiting list entry", req.EntryID)
			}
			if err := validateOffer(entry, req.CustomerID, now); err != nil {
				return err
			}
		}

		var affiliate *models.Affiliate
		if req.ReferralCode != "" {
			var ok bool
			if affiliate, ok = lookupAffiliate(state, req.ReferralCode); !ok {
				fx.ignoredReferral = req.ReferralCode
			}
		}

		plan, err := resolveTarget(state, req.Target, req.Quantity)
		if err != nil {
			return err
		}
		units := len(plan.slots)

		holder := ""
		if entry != nil {
			holder = entry.ID
		}
		deductions := models.MergeDeductions(append(plan.deductions,
			models.PoolDeduction{Pool: models.EventPool(state.Event.ID), Quantity: units}))

		caps := newCapacityStore(state, now, holder)
		if err := caps.ReserveAll(deductions); err != nil {
			return err
		}

		purchase := &models.Purchase{
			ID:            uuid.NewString(),
			EventID:       state.Event.ID,
			CustomerID:    req.CustomerID,
			EntryID:       req.EntryID,
			Target:        req.Target,
			Quantity:      req.Quantity,
			Units:         units,
			Pools:         deductions,
			Buyer:         req.Buyer,
			PaymentRef:    req.Payment.Reference,
			PaymentMethod: req.Payment.Method,
			TotalAmount:   req.Payment.Amount,
			ReferralCode:  req.ReferralCode,
			Commission:    decimal.Zero,
			CreatedAt:     now,
		}

		tickets, err := e.issueTickets(state, purchase, plan.slots, now)
		if err != nil {
			return err
		}

		if entry != nil {
			if entry.OfferedAt != nil {
				fx.offerAge = now.Sub(*entry.OfferedAt)
			}
			purchaseEntry(entry, now)
		}

		caps.CommitAll(deductions)

		if affiliate != nil {
			purchase.Commission = affiliate.CommissionPerTicket.Mul(decimal.NewFromInt(int64(units)))
			affiliate.TotalSold += units
			affiliate.TotalEarned = affiliate.TotalEarned.Add(purchase.Commission)
		}

		state.Purchases[purchase.ID] = purchase
		fx.purchase = purchase
		fx.tickets = tickets
		result = models.PurchaseResult{PurchaseID: purchase.ID, Tickets: tickets}
		return nil
	})
	if errors.Is(err, errNoop) {
		slog.Info("Purchase replayed", "event_id", req.EventID, "purchase_id", result.PurchaseID, "payment_ref", req.Payment.Reference)
		return result, nil
	}
	if err != nil {
		return models.PurchaseResult{}, e.reject(req.EventID, "purchase", err)
	}

	e.apply(ctx, &fx)
	return result, nil
}

// purchaseByPaymentRef finds the purchase a payment already settled. A payment
// confirmation delivered twice must not sell twice.
func purchaseByPaymentRef(state *models.EventState, ref string) *models.Purchase {
	for _, p := range state.Purchases {
		if p.PaymentRef == ref {
			return p
		}
	}
	return nil
}

func purchaseTickets(state *models.EventState, p *models.Purchase) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(p.TicketIDs))
	for _, id := range p.TicketIDs {
		if t, ok := state.Tickets[id]; ok {
			tickets = append(tickets, *t)
		}
	}
	return tickets
}

// issueTickets creates one ticket per slot with a fresh id, a code unique within
// the event and the next display number.
func (e *Engine) issueTickets(state *models.EventState, purchase *models.Purchase, slots []ticketSlot, now time.Time) ([]models.Ticket, error) {
	codes := make(map[string]struct{}, len(state.Tickets)+len(slots))
	for _, t := range state.Tickets {
		codes[t.Code] = struct{}{}
	}

	tickets := make([]models.Ticket, 0, len(slots))
	for _, slot := range slots {
		code, err := uniqueCode(codes, e.codeLength)
		if err != nil {
			return nil, err
		}
		state.NextTicketNumber++

		ticket := &models.Ticket{
			ID:           uuid.NewString(),
			Code:         code,
			Number:       state.NextTicketNumber,
			EventID:      state.Event.ID,
			PurchaseID:   purchase.ID,
			CustomerID:   purchase.CustomerID,
			TicketTypeID: slot.typeID,
			TableID:      slot.tableID,
			BundleID:     slot.bundleID,
			DayID:        slot.dayID,
			SeatLabel:    slot.seatLabel,
			Status:       models.TicketValid,
			IssuedAt:     now,
		}
		state.Tickets[ticket.ID] = ticket
		purchase.TicketIDs = append(purchase.TicketIDs, ticket.ID)
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

func uniqueCode(taken map[string]struct{}, length int) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := utils.GenerateCode(length)
		if err != nil {
			return "", fmt.Errorf("generate ticket code: %w", err)
		}
		if _, dup := taken[code]; !dup {
			taken[code] = struct{}{}
			return code, nil
		}
	}
	return "", fmt.Errorf("could not find a free ticket code")
}
