package store

import (
	"context"
	"sort"
	"sync"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

type memoryEvent struct {
	mu    sync.Mutex
	state *models.EventState
}

// MemoryStore keeps aggregates in process. Each event has its own mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string]*memoryEvent
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*memoryEvent),
		entries: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, state *models.EventState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[state.Event.ID]; ok {
		return status.ErrEventExists
	}
	stored := state.Clone()
	stored.Version = 1
	s.events[state.Event.ID] = &memoryEvent{state: stored}
	for id := range stored.Entries {
		s.entries[id] = stored.Event.ID
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, eventID string) (*models.EventState, error) {
	ev, err := s.event(eventID)
	if err != nil {
		return nil, err
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.state.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, eventID string, fn UpdateFunc) (*models.EventState, error) {
	ev, err := s.event(eventID)
	if err != nil {
		return nil, err
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := ev.state.Clone()
	known := entryIDSet(working)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version++
	ev.state = working

	if added := newEntryIDs(known, working); len(added) > 0 {
		s.mu.Lock()
		for _, id := range added {
			s.entries[id] = eventID
		}
		s.mu.Unlock()
	}
	return working.Clone(), nil
}

func (s *MemoryStore) EventForEntry(ctx context.Context, entryID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eventID, ok := s.entries[entryID]
	if !ok {
		return "", status.NotFound("waiting list entry", entryID)
	}
	return eventID, nil
}

func (s *MemoryStore) EventIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) event(eventID string) (*memoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, status.NotFound("event", eventID)
	}
	return ev, nil
}
