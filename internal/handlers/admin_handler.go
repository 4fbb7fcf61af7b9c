package handlers

import (
	"context"
	"net/http"

	"ticket-engine/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type InventoryAdmin interface {
	RegisterEvent(ctx context.Context, inv models.EventInventory) (*models.EventState, error)
	SetEventCapacity(ctx context.Context, eventID string, capacity int) error
	SetAllocation(ctx context.Context, eventID, ticketTypeID string, allocated int) error
	CancelEvent(ctx context.Context, eventID string) error
	CheckAvailability(ctx context.Context, eventID string) (models.Availability, error)
}

type AdminHandler struct {
	admin InventoryAdmin
}

func NewAdminHandler(admin InventoryAdmin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// RegisterEvent - install an event's ticket types, tables, bundles and affiliates
func (h *AdminHandler) RegisterEvent(e *core.RequestEvent) error {
	var inv models.EventInventory
	if err := e.BindBody(&inv); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	state, err := h.admin.RegisterEvent(e.Request.Context(), inv)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, map[string]any{
		"event_id":     state.Event.ID,
		"capacity":     state.NominalCapacity(),
		"ticket_types": len(state.TicketTypes),
		"tables":       len(state.Tables),
		"bundles":      len(state.Bundles),
	})
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

func bindQuantity(e *core.RequestEvent) (int, error) {
	var req quantityRequest
	if err := e.BindBody(&req); err != nil {
		return 0, apis.NewBadRequestError("Invalid request", err)
	}
	if req.Quantity == nil {
		return 0, apis.NewBadRequestError("Quantity is required", nil)
	}
	return *req.Quantity, nil
}

func (h *AdminHandler) SetCapacity(e *core.RequestEvent) error {
	n, err := bindQuantity(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")
	if err := h.admin.SetEventCapacity(ctx, eventID, n); err != nil {
		return apiError(err)
	}
	return h.availability(e, eventID)
}

func (h *AdminHandler) SetAllocation(e *core.RequestEvent) error {
	n, err := bindQuantity(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	eventID := e.Request.PathValue("eventId")
	if err := h.admin.SetAllocation(ctx, eventID, e.Request.PathValue("ticketTypeId"), n); err != nil {
		return apiError(err)
	}
	return h.availability(e, eventID)
}

func (h *AdminHandler) CancelEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if err := h.admin.CancelEvent(e.Request.Context(), eventID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Event cancelled", "event_id": eventID})
}

func (h *AdminHandler) availability(e *core.RequestEvent, eventID string) error {
	a, err := h.admin.CheckAvailability(e.Request.Context(), eventID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, a)
}
