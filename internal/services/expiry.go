package services

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

const expiryRetryDelay = 5 * time.Second

// ExpiryScheduler arranges for CheckExpiry to run at or after fireAt. It may
// fire more than once or late; the check is idempotent.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, entryID, eventID string, fireAt time.Time) error
}

type ExpiryChecker interface {
	CheckExpiry(ctx context.Context, entryID string) (ExpiryResult, error)
}

type nopScheduler struct{}

func (nopScheduler) ScheduleExpiry(context.Context, string, string, time.Time) error { return nil }

type ExpiryOutcome int

const (
	ExpiryNoop ExpiryOutcome = iota
	ExpiryApplied
	ExpiryNotDue
)

type ExpiryResult struct {
	Outcome ExpiryOutcome
	DueAt   time.Time
}

var errNoop = errors.New("no-op")

// CheckExpiry expires the entry's offer if it is still OFFERED and its window
// has passed, then promotes the next waiting customer. Entries that are gone or
// already moved on are left alone.
func (e *Engine) CheckExpiry(ctx context.Context, entryID string) (ExpiryResult, error) {
	eventID, err := e.store.EventForEntry(ctx, entryID)
	if errors.Is(err, status.ErrNotFound) {
		slog.Debug("Expiry fired for unknown entry", "entry_id", entryID)
		return ExpiryResult{}, nil
	}
	if err != nil {
		return ExpiryResult{}, err
	}

	var (
		fx     effects
		result ExpiryResult
	)
	_, err = e.store.Update(ctx, eventID, func(state *models.EventState) error {
		fx.reset()
		result = ExpiryResult{}
		now := e.clock.Now()

		entry, ok := state.Entries[entryID]
		if !ok || entry.Status != models.EntryOffered {
			return errNoop
		}
		if entry.ActiveOffer(now) {
			result = ExpiryResult{Outcome: ExpiryNotDue, DueAt: *entry.OfferExpiresAt}
			return errNoop
		}

		expireEntry(entry, now)
		fx.expired = append(fx.expired, *entry)
		e.settle(state, now, &fx)
		result.Outcome = ExpiryApplied
		return nil
	})
	if errors.Is(err, errNoop) || errors.Is(err, status.ErrNotFound) {
		slog.Debug("Expiry check was a no-op", "event_id", eventID, "entry_id", entryID, "outcome", result.Outcome)
		return result, nil
	}
	if err != nil {
		return ExpiryResult{}, err
	}

	e.apply(ctx, &fx)
	return result, nil
}

// RestoreOffers re-arms expiry timers for every outstanding offer, for use
// after a restart. Offers already past due fire right away.
func (e *Engine) RestoreOffers(ctx context.Context) (int, error) {
	eventIDs, err := e.store.EventIDs(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, eventID := range eventIDs {
		state, err := e.store.Get(ctx, eventID)
		if err != nil {
			slog.Error("Failed to load event for offer restore", "event_id", eventID, "error", err)
			continue
		}
		for _, entry := range state.OfferedEntries() {
			if err := e.scheduler.ScheduleExpiry(ctx, entry.ID, eventID, *entry.OfferExpiresAt); err != nil {
				return restored, err
			}
			restored++
		}
	}

	log.Printf("Restored %d outstanding offers across %d events", restored, len(eventIDs))
	return restored, nil
}

// TimerScheduler runs one in-process timer per offer.
type TimerScheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	checker ExpiryChecker
	timers  map[string]armedTimer
	gen     uint64
	stopped bool
}

// armedTimer pairs a timer with the generation it was armed under. A timer
// that fires after its entry was re-armed finds a newer generation and backs off.
type armedTimer struct {
	timer *time.Timer
	gen   uint64
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]armedTimer)}
}

// Start binds the scheduler to the checker. Timers scheduled earlier fire into it too.
func (s *TimerScheduler) Start(ctx context.Context, checker ExpiryChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.checker = checker
}

func (s *TimerScheduler) ScheduleExpiry(ctx context.Context, entryID, eventID string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.New("expiry scheduler stopped")
	}
	if armed, ok := s.timers[entryID]; ok {
		armed.timer.Stop()
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	s.gen++
	gen := s.gen
	s.timers[entryID] = armedTimer{
		timer: time.AfterFunc(delay, func() { s.fire(entryID, eventID, gen) }),
		gen:   gen,
	}
	return nil
}

func (s *TimerScheduler) fire(entryID, eventID string, gen uint64) {
	s.mu.Lock()
	if armed, ok := s.timers[entryID]; !ok || armed.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, entryID)
	ctx, checker, stopped := s.ctx, s.checker, s.stopped
	s.mu.Unlock()

	if stopped || checker == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	result, err := checker.CheckExpiry(ctx, entryID)
	switch {
	case err != nil:
		slog.Error("Offer expiry check failed, retrying", "event_id", eventID, "entry_id", entryID, "error", err)
		_ = s.ScheduleExpiry(ctx, entryID, eventID, time.Now().Add(expiryRetryDelay))
	case result.Outcome == ExpiryNotDue:
		_ = s.ScheduleExpiry(ctx, entryID, eventID, result.DueAt)
	}
}

// Pending is the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *TimerScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, id)
	}
}
