package services

import (
	"context"
	"strings"
	"testing"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEvent_Validation(t *testing.T) {
	te := newTestEngine(t, festivalEvent("evt-1"))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.EventInventory)
		want   error
	}{
		{"duplicate event", func(inv *models.EventInventory) {}, status.ErrEventExists},
		{"missing event id", func(inv *models.EventInventory) { inv.Event.ID = "" }, status.ErrInvalidArgument},
		{"negative capacity", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.Event.Capacity = -1
		}, status.ErrInvalidArgument},
		{"duplicate ticket type", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.TicketTypes = append(inv.TicketTypes, inv.TicketTypes[0])
		}, status.ErrInvalidArgument},
		{"table without source", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.Tables[0].SourceTypeID = "balcony"
		}, status.ErrInvalidArgument},
		{"table without seats", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.Tables[0].SeatCount = 0
		}, status.ErrInvalidArgument},
		{"empty bundle", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.Bundles[0].Items = nil
		}, status.ErrInvalidArgument},
		{"bundle item of unknown type", func(inv *models.EventInventory) {
			inv.Event.ID = "evt-2"
			inv.Bundles[0].Items = []models.BundleItem{{TicketTypeID: "mon", Quantity: 1}}
		}, status.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := festivalEvent("evt-1")
			tt.mutate(&inv)
			_, err := te.RegisterEvent(ctx, inv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterEvent_ResetsCounters(t *testing.T) {
	inv := festivalEvent("evt-1")
	inv.Event.SoldUnits = 4
	inv.TicketTypes[0].SoldCount = 4
	inv.Tables[0].SoldCount = 1

	te := newTestEngine(t, inv)
	s := te.state(t, "evt-1")
	assert.Equal(t, 0, s.Event.SoldUnits)
	assert.Equal(t, 0, s.TicketTypes["ga"].SoldCount)
	assert.Equal(t, 0, s.Tables["vip"].SoldCount)
	assert.Equal(t, "evt-1", s.TicketTypes["ga"].EventID)
	assert.Equal(t, testStart, s.Event.CreatedAt)
}

func TestSetAllocation_BelowSoldCount(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, festivalEvent("evt-1"))

	_, err := te.Purchase(ctx, purchaseRequest("evt-1", "alice", "", models.SaleTarget{Kind: models.SaleTable, ID: "vip"}, 1))
	require.NoError(t, err)
	_, err = te.Purchase(ctx, purchaseRequest("evt-1", "bob", "", gaTarget(), 1))
	require.NoError(t, err)
	before := te.state(t, "evt-1")

	err = te.SetAllocation(ctx, "evt-1", "ga", 8)
	assert.ErrorIs(t, err, status.ErrBelowSoldCount)

	after := te.state(t, "evt-1")
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 10, after.TicketTypes["ga"].AllocatedQuantity)
	assert.Equal(t, 1, after.TicketTypes["ga"].SoldCount)
	assert.Equal(t, 8, after.TicketTypes["ga"].ReservedToTables)

	require.NoError(t, te.SetAllocation(ctx, "evt-1", "ga", 9))
	assert.Equal(t, 9, te.state(t, "evt-1").TicketTypes["ga"].AllocatedQuantity)

	err = te.SetAllocation(ctx, "evt-1", "balcony", 9)
	assert.ErrorIs(t, err, status.ErrNotFound)
	err = te.SetAllocation(ctx, "evt-1", "ga", -1)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
}

func TestSetAllocation_IncreasePromotesWaiting(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, singleTypeEvent("evt-1", 0, 1))

	_, err := te.JoinWaitingList(ctx, "evt-1", "alice")
	require.NoError(t, err)
	bob, err := te.JoinWaitingList(ctx, "evt-1", "bob")
	require.NoError(t, err)
	require.Equal(t, models.EntryWaiting, bob.Status)

	require.NoError(t, te.SetAllocation(ctx, "evt-1", "ga", 2))

	s := te.state(t, "evt-1")
	assert.Equal(t, models.EntryOffered, s.Entries[bob.EntryID].Status)
	assert.Equal(t, 2, s.NominalCapacity())
}

func TestSetEventCapacity(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, singleTypeEvent("evt-1", 2, 10))

	_, err := te.Purchase(ctx, purchaseRequest("evt-1", "alice", "", gaTarget(), 2))
	require.NoError(t, err)
	carol, err := te.JoinWaitingList(ctx, "evt-1", "carol")
	require.NoError(t, err)
	require.Equal(t, models.EntryWaiting, carol.Status)

	err = te.SetEventCapacity(ctx, "evt-1", 1)
	assert.ErrorIs(t, err, status.ErrBelowSoldCount)
	assert.Equal(t, 2, te.state(t, "evt-1").Event.Capacity)

	require.NoError(t, te.SetEventCapacity(ctx, "evt-1", 3))
	s := te.state(t, "evt-1")
	assert.Equal(t, 3, s.Event.Capacity)
	assert.Equal(t, models.EntryOffered, s.Entries[carol.EntryID].Status)

	// Zero falls back to the ticket type allocations.
	require.NoError(t, te.SetEventCapacity(ctx, "evt-1", 0))
	availability, err := te.CheckAvailability(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, availability.Total)
	assert.Equal(t, 2, availability.Sold)
	assert.Equal(t, 1, availability.ActiveOffers)
	assert.Equal(t, 7, availability.Available)
}

func TestJoinWaitingList_OffersBoundedBySupply(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		allocated int
		offers    int
	}{
		{"declared above allocations", 5, 2, 2},
		{"declared below allocations", 2, 5, 2},
		{"derived from allocations", 0, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			te := newTestEngine(t, singleTypeEvent("evt-1", tt.capacity, tt.allocated))

			var offered []string
			for _, customer := range []string{"alice", "bob", "carol", "dave", "erin"} {
				res, err := te.JoinWaitingList(ctx, "evt-1", customer)
				require.NoError(t, err)
				if res.Status == models.EntryOffered {
					offered = append(offered, customer+"|"+res.EntryID)
				}
			}
			require.Len(t, offered, tt.offers)

			for _, o := range offered {
				customer, entryID, _ := strings.Cut(o, "|")
				_, err := te.Purchase(ctx, purchaseRequest("evt-1", customer, entryID, gaTarget(), 1))
				require.NoError(t, err, customer)
			}
			assert.Equal(t, tt.offers, te.state(t, "evt-1").Event.SoldUnits)
		})
	}
}

func TestCancelEvent(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, singleTypeEvent("evt-1", 1, 1))

	alice, err := te.JoinWaitingList(ctx, "evt-1", "alice")
	require.NoError(t, err)
	bob, err := te.JoinWaitingList(ctx, "evt-1", "bob")
	require.NoError(t, err)

	require.NoError(t, te.CancelEvent(ctx, "evt-1"))
	require.NoError(t, te.CancelEvent(ctx, "evt-1"))

	s := te.state(t, "evt-1")
	assert.True(t, s.Event.Cancelled)
	assert.Equal(t, models.EntryExpired, s.Entries[alice.EntryID].Status)
	assert.Equal(t, models.EntryExpired, s.Entries[bob.EntryID].Status)
	assert.Len(t, te.notifier.ofType(NotificationEventCancelled), 2)

	_, err = te.JoinWaitingList(ctx, "evt-1", "carol")
	assert.ErrorIs(t, err, status.ErrEventCancelled)
	_, err = te.Purchase(ctx, purchaseRequest("evt-1", "carol", "", gaTarget(), 1))
	assert.ErrorIs(t, err, status.ErrEventCancelled)
}

func TestCancelEvent_WithSalesRejected(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, singleTypeEvent("evt-1", 0, 5))

	_, err := te.Purchase(ctx, purchaseRequest("evt-1", "alice", "", gaTarget(), 1))
	require.NoError(t, err)

	err = te.CancelEvent(ctx, "evt-1")
	assert.ErrorIs(t, err, status.ErrBelowSoldCount)
	assert.False(t, te.state(t, "evt-1").Event.Cancelled)
}

func TestPoolAvailability_ListsEveryPool(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, festivalEvent("evt-1"))

	pools, err := te.PoolAvailability(ctx, "evt-1")
	require.NoError(t, err)

	var ids []string
	for _, p := range pools {
		ids = append(ids, string(p.PoolID))
	}
	assert.Equal(t, []string{"event:evt-1", "bundle:weekend", "table:vip", "type:ga", "type:sat", "type:sun"}, ids)

	byID := map[string]models.Availability{}
	for _, p := range pools {
		byID[string(p.PoolID)] = p
	}
	assert.Equal(t, 16, byID["event:evt-1"].Available)
	assert.Equal(t, 1, byID["table:vip"].Available)
	assert.Equal(t, 1, byID["bundle:weekend"].Available)

	_, err = te.CheckPoolAvailability(ctx, "evt-1", models.PoolID("seat:a1"))
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, festivalEvent("evt-1"))

	res, err := te.Purchase(ctx, purchaseRequest("evt-1", "alice", "", models.SaleTarget{Kind: models.SaleBundle, ID: "weekend"}, 1))
	require.NoError(t, err)
	code := res.Tickets[1].Code

	ticket, err := te.CheckIn(ctx, "evt-1", " "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	assert.Equal(t, "day-2", ticket.DayID)
	require.NotNil(t, ticket.UsedAt)
	assert.Equal(t, testStart, *ticket.UsedAt)

	_, err = te.CheckIn(ctx, "evt-1", code)
	assert.ErrorIs(t, err, status.ErrAlreadyCheckedIn)

	_, err = te.CheckIn(ctx, "evt-1", "ZZZZZZZZ")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = te.CheckIn(ctx, "evt-1", "")
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	s := te.state(t, "evt-1")
	assert.Equal(t, models.TicketValid, s.Tickets[res.Tickets[0].ID].Status)
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, festivalEvent("evt-1"))

	q, err := te.Quote(ctx, "evt-1", models.SaleTarget{Kind: models.SaleBundle, ID: "weekend"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "100.00", q.Total.StringFixed(2))
	assert.Equal(t, testStart, q.QuotedAt)

	_, err = te.Quote(ctx, "evt-1", models.SaleTarget{Kind: models.SaleTable, ID: "balcony"}, 1)
	assert.ErrorIs(t, err, status.ErrNotFound)
	_, err = te.Quote(ctx, "missing", gaTarget(), 1)
	assert.ErrorIs(t, err, status.ErrNotFound)
}
