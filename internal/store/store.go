package store

import (
	"context"

	"ticket-engine/models"
)

// UpdateFunc mutates a private copy of the event aggregate. Returning an error
// discards every change it made.
type UpdateFunc func(state *models.EventState) error

// Store persists event aggregates and serializes writes per event. Writes to
// different events never wait on each other.
type Store interface {
	Create(ctx context.Context, state *models.EventState) error
	Get(ctx context.Context, eventID string) (*models.EventState, error)
	Update(ctx context.Context, eventID string, fn UpdateFunc) (*models.EventState, error)
	EventForEntry(ctx context.Context, entryID string) (string, error)
	EventIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

func newEntryIDs(before map[string]struct{}, after *models.EventState) []string {
	var ids []string
	for id := range after.Entries {
		if _, ok := before[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func entryIDSet(state *models.EventState) map[string]struct{} {
	set := make(map[string]struct{}, len(state.Entries))
	for id := range state.Entries {
		set[id] = struct{}{}
	}
	return set
}
