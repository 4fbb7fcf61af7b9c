package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-engine/internal/clock"
	"ticket-engine/internal/records"
	"ticket-engine/internal/services"
	"ticket-engine/internal/status"
	"ticket-engine/internal/store"
	"ticket-engine/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *services.Engine {
	t.Helper()
	engine := services.NewEngine(store.NewMemoryStore(), services.WithClock(clock.NewFixed(testNow)))
	_, err := engine.RegisterEvent(context.Background(), models.EventInventory{
		Event: models.Event{ID: "evt-1", Name: "Club Night", Capacity: 10},
		TicketTypes: []models.TicketType{
			{ID: "ga", Name: "General Admission", AllocatedQuantity: 10, Price: decimal.NewFromInt(40), IsActive: true},
		},
		Tables: []models.Table{
			{ID: "booth", Name: "Booth", SourceTypeID: "ga", SeatCount: 8, Price: decimal.NewFromInt(300), IsActive: true},
		},
	})
	require.NoError(t, err)
	return engine
}

func newRequestEvent(method, target string, body any, pathValues map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func requireStatus(t *testing.T, err error, want int) {
	t.Helper()
	var apiErr *router.ApiError
	require.True(t, errors.As(err, &apiErr), "expected an api error, got %v", err)
	assert.Equal(t, want, apiErr.Status)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func purchaseBody(customer, ref string, target models.SaleTarget, quantity int, amount int64) map[string]any {
	return map[string]any{
		"customer_id": customer,
		"target":      target,
		"quantity":    quantity,
		"buyer":       map[string]any{"name": "Test Buyer", "email": customer + "@example.com"},
		"payment": map[string]any{
			"method":    "card",
			"reference": ref,
			"amount":    fmt.Sprint(amount),
			"card":      map[string]any{"brand": "visa", "last4": "4242"},
		},
	}
}

func TestQueueHandler_EnterQueue(t *testing.T) {
	h := NewQueueHandler(newEngine(t))
	path := map[string]string{"eventId": "evt-1"}

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/events/evt-1/waiting-list", map[string]any{"customer_id": "alice"}, path)
	require.NoError(t, h.EnterQueue(e))
	assert.Equal(t, http.StatusCreated, rec.Code)
	res := decode[models.JoinResult](t, rec)
	assert.Equal(t, models.EntryOffered, res.Status)
	require.NotNil(t, res.OfferExpiresAt)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/events/evt-1/waiting-list", map[string]any{"customer_id": "alice"}, path)
	requireStatus(t, h.EnterQueue(e), http.StatusConflict)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/events/evt-1/waiting-list", map[string]any{}, path)
	requireStatus(t, h.EnterQueue(e), http.StatusBadRequest)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/events/missing/waiting-list", map[string]any{"customer_id": "bob"}, map[string]string{"eventId": "missing"})
	requireStatus(t, h.EnterQueue(e), http.StatusNotFound)
}

func TestQueueHandler_PositionAndLeave(t *testing.T) {
	engine := newEngine(t)
	h := NewQueueHandler(engine)
	ctx := context.Background()

	joined, err := engine.JoinWaitingList(ctx, "evt-1", "alice")
	require.NoError(t, err)
	entryPath := map[string]string{"entryId": joined.EntryID}

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/waiting-list/"+joined.EntryID, nil, entryPath)
	require.NoError(t, h.GetQueuePosition(e))
	pos := decode[models.EntryPosition](t, rec)
	assert.Equal(t, "alice", pos.Entry.CustomerID)
	assert.Equal(t, models.EntryOffered, pos.Entry.Status)

	e, _ = newRequestEvent(http.MethodDelete, "/api/v1/waiting-list/"+joined.EntryID, nil, entryPath)
	requireStatus(t, h.LeaveQueue(e), http.StatusBadRequest)

	e, _ = newRequestEvent(http.MethodDelete, "/api/v1/waiting-list/"+joined.EntryID+"?customer_id=bob", nil, entryPath)
	requireStatus(t, h.LeaveQueue(e), http.StatusConflict)

	e, rec = newRequestEvent(http.MethodDelete, "/api/v1/waiting-list/"+joined.EntryID+"?customer_id=alice", nil, entryPath)
	require.NoError(t, h.LeaveQueue(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	e, _ = newRequestEvent(http.MethodGet, "/api/v1/waiting-list/nope", nil, map[string]string{"entryId": "nope"})
	requireStatus(t, h.GetQueuePosition(e), http.StatusNotFound)
}

func TestInventoryHandler_Purchase(t *testing.T) {
	h := NewInventoryHandler(newEngine(t), nil)
	path := map[string]string{"eventId": "evt-1"}
	booth := models.SaleTarget{Kind: models.SaleTable, ID: "booth"}
	ga := models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"}

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"payment below quote", purchaseBody("alice", "pay-1", booth, 1, 299), http.StatusBadRequest},
		{"table", purchaseBody("alice", "pay-2", booth, 1, 300), http.StatusCreated},
		{"more than remains", purchaseBody("bob", "pay-3", ga, 3, 120), http.StatusConflict},
		{"unknown target", purchaseBody("bob", "pay-4", models.SaleTarget{Kind: models.SaleBundle, ID: "weekend"}, 1, 10), http.StatusNotFound},
		{"missing quantity", purchaseBody("bob", "pay-5", ga, 0, 40), http.StatusBadRequest},
		{"remaining seats", purchaseBody("bob", "pay-6", ga, 2, 80), http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newRequestEvent(http.MethodPost, "/api/v1/events/evt-1/purchases", tt.body, path)
			err := h.Purchase(e)
			if tt.code == http.StatusCreated {
				require.NoError(t, err)
				assert.Equal(t, http.StatusCreated, rec.Code)
				res := decode[models.PurchaseResult](t, rec)
				assert.NotEmpty(t, res.PurchaseID)
				assert.NotEmpty(t, res.Tickets)
				return
			}
			requireStatus(t, err, tt.code)
		})
	}

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/events/evt-1/availability", nil, path)
	require.NoError(t, h.GetAvailability(e))
	body := decode[struct {
		Event models.Availability   `json:"event"`
		Pools []models.Availability `json:"pools"`
	}](t, rec)
	assert.Equal(t, 0, body.Event.Available)
	assert.Equal(t, 10, body.Event.Sold)
	assert.Len(t, body.Pools, 2)
}

func TestInventoryHandler_QuoteAndPool(t *testing.T) {
	h := NewInventoryHandler(newEngine(t), nil)

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/events/evt-1/quote",
		map[string]any{"target": map[string]any{"kind": "ticket_type", "id": "ga"}, "quantity": 3},
		map[string]string{"eventId": "evt-1"})
	require.NoError(t, h.Quote(e))
	quote := decode[struct {
		Total decimal.Decimal `json:"total"`
	}](t, rec)
	assert.Equal(t, "120.00", quote.Total.StringFixed(2))

	e, rec = newRequestEvent(http.MethodGet, "/api/v1/events/evt-1/pools/table:booth/availability", nil,
		map[string]string{"eventId": "evt-1", "poolId": "table:booth"})
	require.NoError(t, h.GetPoolAvailability(e))
	a := decode[models.Availability](t, rec)
	assert.Equal(t, models.TablePool("booth"), a.PoolID)
	assert.Equal(t, 1, a.Available)

	e, _ = newRequestEvent(http.MethodGet, "/api/v1/events/evt-1/pools/seat:1/availability", nil,
		map[string]string{"eventId": "evt-1", "poolId": "seat:1"})
	requireStatus(t, h.GetPoolAvailability(e), http.StatusNotFound)
}

func TestInventoryHandler_CheckIn(t *testing.T) {
	engine := newEngine(t)
	h := NewInventoryHandler(engine, nil)

	res, err := engine.Purchase(context.Background(), models.PurchaseRequest{
		EventID:    "evt-1",
		CustomerID: "alice",
		Target:     models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"},
		Quantity:   1,
		Payment: models.PaymentConfirmation{
			Method:        models.PaymentComplimentary,
			Reference:     "comp-1",
			Complimentary: &models.ComplimentaryPayment{IssuedBy: "box office"},
		},
	})
	require.NoError(t, err)
	path := map[string]string{"eventId": "evt-1", "code": res.Tickets[0].Code}

	e, rec := newRequestEvent(http.MethodPost, "/check-in", nil, path)
	require.NoError(t, h.CheckIn(e))
	ticket := decode[models.Ticket](t, rec)
	assert.Equal(t, models.TicketUsed, ticket.Status)

	e, _ = newRequestEvent(http.MethodPost, "/check-in", nil, path)
	requireStatus(t, h.CheckIn(e), http.StatusConflict)
}

type stubHistory struct {
	customer  string
	purchases []records.PurchaseSummary
	err       error
}

func (s *stubHistory) CustomerPurchases(_ context.Context, customerID string) ([]records.PurchaseSummary, error) {
	s.customer = customerID
	return s.purchases, s.err
}

func TestInventoryHandler_GetPurchaseHistory(t *testing.T) {
	history := &stubHistory{purchases: []records.PurchaseSummary{{PurchaseID: "pur-1", TotalAmount: "40.00"}}}
	h := NewInventoryHandler(nil, history)

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/customers/alice/purchases", nil, map[string]string{"customerId": "alice"})
	require.NoError(t, h.GetPurchaseHistory(e))
	assert.Equal(t, "alice", history.customer)
	assert.Contains(t, rec.Body.String(), `"purchase_id":"pur-1"`)

	history.err = errors.New("database is locked")
	e, _ = newRequestEvent(http.MethodGet, "/api/v1/customers/alice/purchases", nil, map[string]string{"customerId": "alice"})
	requireStatus(t, h.GetPurchaseHistory(e), http.StatusInternalServerError)
}

func TestAdminHandler(t *testing.T) {
	engine := newEngine(t)
	h := NewAdminHandler(engine)
	ctx := context.Background()

	_, err := engine.Purchase(ctx, models.PurchaseRequest{
		EventID:    "evt-1",
		CustomerID: "alice",
		Target:     models.SaleTarget{Kind: models.SaleTicketType, ID: "ga"},
		Quantity:   4,
		Payment: models.PaymentConfirmation{
			Method:        models.PaymentComplimentary,
			Reference:     "comp-1",
			Complimentary: &models.ComplimentaryPayment{IssuedBy: "box office"},
		},
	})
	require.NoError(t, err)
	allocation := map[string]string{"eventId": "evt-1", "ticketTypeId": "ga"}

	e, _ := newRequestEvent(http.MethodPatch, "/allocation", map[string]any{"quantity": 3}, allocation)
	requireStatus(t, h.SetAllocation(e), http.StatusConflict)

	e, _ = newRequestEvent(http.MethodPatch, "/allocation", map[string]any{}, allocation)
	requireStatus(t, h.SetAllocation(e), http.StatusBadRequest)

	e, rec := newRequestEvent(http.MethodPatch, "/allocation", map[string]any{"quantity": 6}, allocation)
	require.NoError(t, h.SetAllocation(e))
	assert.Equal(t, 2, decode[models.Availability](t, rec).Available)

	e, rec = newRequestEvent(http.MethodPatch, "/capacity", map[string]any{"quantity": 5}, map[string]string{"eventId": "evt-1"})
	require.NoError(t, h.SetCapacity(e))
	assert.Equal(t, 1, decode[models.Availability](t, rec).Available)

	e, _ = newRequestEvent(http.MethodPost, "/cancel", nil, map[string]string{"eventId": "evt-1"})
	requireStatus(t, h.CancelEvent(e), http.StatusConflict)

	inv := map[string]any{
		"event":        map[string]any{"id": "evt-2", "name": "Matinee", "capacity": 2},
		"ticket_types": []map[string]any{{"id": "ga", "name": "GA", "allocated_quantity": 2, "price": "10"}},
	}
	e, rec = newRequestEvent(http.MethodPut, "/api/v1/admin/events", inv, nil)
	require.NoError(t, h.RegisterEvent(e))
	assert.Equal(t, http.StatusCreated, rec.Code)

	e, _ = newRequestEvent(http.MethodPut, "/api/v1/admin/events", inv, nil)
	requireStatus(t, h.RegisterEvent(e), http.StatusConflict)

	e, rec = newRequestEvent(http.MethodPost, "/cancel", nil, map[string]string{"eventId": "evt-2"})
	require.NoError(t, h.CancelEvent(e))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{status.Invalid("bad"), http.StatusBadRequest},
		{status.NotFound("event", "x"), http.StatusNotFound},
		{status.ErrAlreadyQueued, http.StatusConflict},
		{status.ErrBelowSoldCount, http.StatusConflict},
		{status.ErrEventCancelled, http.StatusConflict},
		{status.ErrAlreadyCheckedIn, http.StatusConflict},
		{&status.InventoryError{Pool: "type:ga"}, http.StatusConflict},
		{status.ErrContention, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			requireStatus(t, apiError(tt.err), tt.code)
		})
	}
}
