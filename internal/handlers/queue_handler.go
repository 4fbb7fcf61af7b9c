package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"ticket-engine/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type WaitingList interface {
	JoinWaitingList(ctx context.Context, eventID, customerID string) (models.JoinResult, error)
	EntryStatus(ctx context.Context, entryID string) (models.EntryPosition, error)
	CancelWaitingListEntry(ctx context.Context, entryID, customerID string) error
}

type QueueHandler struct {
	waitingList WaitingList
}

func NewQueueHandler(waitingList WaitingList) *QueueHandler {
	return &QueueHandler{waitingList: waitingList}
}

// EnterQueue - join the event's waiting list
func (h *QueueHandler) EnterQueue(e *core.RequestEvent) error {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	eventID := e.Request.PathValue("eventId")
	customer := customerID(e, req.CustomerID)
	if customer == "" {
		return apis.NewBadRequestError("Invalid request", errors.New("customer id must not be empty"))
	}

	res, err := h.waitingList.JoinWaitingList(e.Request.Context(), eventID, customer)
	if err != nil {
		slog.Info("Join rejected", "event_id", eventID, "customer_id", customer, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, res)
}

// GetQueuePosition - entry status and FIFO position
func (h *QueueHandler) GetQueuePosition(e *core.RequestEvent) error {
	pos, err := h.waitingList.EntryStatus(e.Request.Context(), e.Request.PathValue("entryId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, pos)
}

// LeaveQueue - withdraw a waiting or offered entry
func (h *QueueHandler) LeaveQueue(e *core.RequestEvent) error {
	entryID := e.Request.PathValue("entryId")
	customer := customerID(e, e.Request.URL.Query().Get("customer_id"))
	if customer == "" {
		return apis.NewBadRequestError("Invalid request", errors.New("customer id must not be empty"))
	}

	if err := h.waitingList.CancelWaitingListEntry(e.Request.Context(), entryID, customer); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Left the waiting list", "entry_id": entryID})
}
