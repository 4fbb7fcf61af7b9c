package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

// CheckIn admits the holder of a ticket code. A ticket admits once.
func (e *Engine) CheckIn(ctx context.Context, eventID, code string) (models.Ticket, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.Ticket{}, status.Invalid("ticket code is required")
	}

	var ticket models.Ticket
	_, err := e.store.Update(ctx, eventID, func(state *models.EventState) error {
		t := state.TicketByCode(code)
		if t == nil {
			return status.NotFound("ticket", code)
		}
		if t.Status == models.TicketUsed {
			return fmt.Errorf("ticket %s used at %s: %w", code, t.UsedAt.Format("2006-01-02 15:04:05"), status.ErrAlreadyCheckedIn)
		}
		now := e.clock.Now()
		t.Status = models.TicketUsed
		t.UsedAt = &now
		ticket = *t
		return nil
	})
	if err != nil {
		return models.Ticket{}, e.reject(eventID, "check_in", err)
	}

	slog.Info("Ticket checked in", "event_id", eventID, "ticket_id", ticket.ID, "day_id", ticket.DayID, "seat", ticket.SeatLabel)
	return ticket, nil
}
