package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ticket-engine/internal/pricing"
	"ticket-engine/internal/records"
	"ticket-engine/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type Inventory interface {
	CheckAvailability(ctx context.Context, eventID string) (models.Availability, error)
	CheckPoolAvailability(ctx context.Context, eventID string, pool models.PoolID) (models.Availability, error)
	PoolAvailability(ctx context.Context, eventID string) ([]models.Availability, error)
	Quote(ctx context.Context, eventID string, target models.SaleTarget, quantity int) (pricing.Quote, error)
	Purchase(ctx context.Context, req models.PurchaseRequest) (models.PurchaseResult, error)
	CheckIn(ctx context.Context, eventID, code string) (models.Ticket, error)
}

type PurchaseHistory interface {
	CustomerPurchases(ctx context.Context, customerID string) ([]records.PurchaseSummary, error)
}

type InventoryHandler struct {
	inventory Inventory
	history   PurchaseHistory
}

func NewInventoryHandler(inventory Inventory, history PurchaseHistory) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, history: history}
}

// GetAvailability - event pool plus every ticket type, table and bundle pool
func (h *InventoryHandler) GetAvailability(e *core.RequestEvent) error {
	pools, err := h.inventory.PoolAvailability(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event": pools[0], "pools": pools[1:]})
}

func (h *InventoryHandler) GetPoolAvailability(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	pool := models.PoolID(e.Request.PathValue("poolId"))

	a, err := h.inventory.CheckPoolAvailability(e.Request.Context(), eventID, pool)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, a)
}

type quoteRequest struct {
	Target   models.SaleTarget `json:"target"`
	Quantity int               `json:"quantity"`
}

func (h *InventoryHandler) Quote(e *core.RequestEvent) error {
	var req quoteRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	q, err := h.inventory.Quote(e.Request.Context(), e.Request.PathValue("eventId"), req.Target, req.Quantity)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, q)
}

// Purchase - allocate inventory against a confirmed payment
func (h *InventoryHandler) Purchase(e *core.RequestEvent) error {
	var req models.PurchaseRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.EventID = e.Request.PathValue("eventId")
	req.CustomerID = customerID(e, req.CustomerID)
	if err := req.Validate(); err != nil {
		return apiError(err)
	}

	ctx := e.Request.Context()
	q, err := h.inventory.Quote(ctx, req.EventID, req.Target, req.Quantity)
	if err != nil {
		return apiError(err)
	}
	if err := pricing.CoversQuote(req.Payment, q); err != nil {
		slog.Warn("Payment below quote", "event_id", req.EventID, "customer_id", req.CustomerID,
			"payment_ref", req.Payment.Reference, "total", q.Total.StringFixed(2))
		return apiError(err)
	}

	res, err := h.inventory.Purchase(ctx, req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, res)
}

// GetPurchaseHistory - purchases mirrored into the purchases collection
func (h *InventoryHandler) GetPurchaseHistory(e *core.RequestEvent) error {
	customer := customerID(e, e.Request.PathValue("customerId"))
	if customer == "" {
		return apis.NewBadRequestError("Invalid request", errors.New("customer id must not be empty"))
	}

	purchases, err := h.history.CustomerPurchases(e.Request.Context(), customer)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"customer_id": customer, "purchases": purchases})
}

func (h *InventoryHandler) CheckIn(e *core.RequestEvent) error {
	ticket, err := h.inventory.CheckIn(e.Request.Context(), e.Request.PathValue("eventId"), e.Request.PathValue("code"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticket)
}
