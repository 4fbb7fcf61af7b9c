package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"ticket-engine/internal/status"
	"ticket-engine/models"
	"ticket-engine/utils"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix  = "inventory:event:"
	entryKeyPrefix  = "inventory:entry:"
	activeEventsKey = "active_events"

	defaultMaxRetries = 50
)

func eventKey(eventID string) string { return eventKeyPrefix + eventID }
func entryKey(entryID string) string { return entryKeyPrefix + entryID }

// RedisStore keeps each event aggregate as one JSON document and serializes
// writes with WATCH/MULTI. A write that loses the race is replayed against the
// fresh document.
type RedisStore struct {
	Redis      *redis.Client
	maxRetries int
}

type RedisOption func(*RedisStore)

func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{Redis: client, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Create(ctx context.Context, state *models.EventState) error {
	stored := state.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", state.Event.ID, err)
	}

	ok, err := s.Redis.SetNX(ctx, eventKey(state.Event.ID), string(data), 0).Result()
	if err != nil {
		return fmt.Errorf("create event %s: %w", state.Event.ID, err)
	}
	if !ok {
		return status.ErrEventExists
	}

	if err := s.Redis.SAdd(ctx, activeEventsKey, state.Event.ID).Err(); err != nil {
		return fmt.Errorf("index event %s: %w", state.Event.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, eventID string) (*models.EventState, error) {
	data, err := s.Redis.Get(ctx, eventKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, status.NotFound("event", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return decodeState(data)
}

func (s *RedisStore) Update(ctx context.Context, eventID string, fn UpdateFunc) (*models.EventState, error) {
	key := eventKey(eventID)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var committed *models.EventState

		err := s.Redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return status.NotFound("event", eventID)
			}
			if err != nil {
				return err
			}

			next, encoded, added, err := applyUpdate(data, fn)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, 0)
				for _, id := range added {
					pipe.Set(ctx, entryKey(id), eventID, 0)
				}
				return nil
			})
			if err != nil {
				return err
			}

			committed = next
			return nil
		}, key)

		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			slog.Debug("event update lost race, retrying", "event_id", eventID, "attempt", attempt+1)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("update event %s after %d attempts: %w", eventID, s.maxRetries, status.ErrContention)
}

func (s *RedisStore) EventForEntry(ctx context.Context, entryID string) (string, error) {
	eventID, err := s.Redis.Get(ctx, entryKey(entryID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", status.NotFound("waiting list entry", entryID)
	}
	if err != nil {
		return "", fmt.Errorf("lookup entry %s: %w", entryID, err)
	}
	return eventID, nil
}

func (s *RedisStore) EventIDs(ctx context.Context) ([]string, error) {
	ids, err := s.Redis.SMembers(ctx, activeEventsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return utils.RedisHealthCheck(ctx, s.Redis)
}

// applyUpdate decodes data, runs fn and re-encodes the result with a bumped
// version. It also reports entry ids that did not exist before fn ran.
func applyUpdate(data []byte, fn UpdateFunc) (*models.EventState, string, []string, error) {
	state, err := decodeState(data)
	if err != nil {
		return nil, "", nil, err
	}
	known := entryIDSet(state)

	if err := fn(state); err != nil {
		return nil, "", nil, err
	}
	state.Version++

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, "", nil, fmt.Errorf("encode event %s: %w", state.Event.ID, err)
	}

	added := newEntryIDs(known, state)
	sort.Strings(added)
	return state, string(encoded), added, nil
}

func decodeState(data []byte) (*models.EventState, error) {
	var state models.EventState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode event state: %w", err)
	}
	state.Normalize()
	return &state, nil
}
