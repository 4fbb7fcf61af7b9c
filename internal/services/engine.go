package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-engine/internal/clock"
	"ticket-engine/internal/status"
	"ticket-engine/internal/store"
	"ticket-engine/models"
)

const (
	defaultOfferWindow = 15 * time.Minute
	ticketCodeLength   = 8
)

// Metrics receives engine outcomes. monitoring.Monitor implements it.
type Metrics interface {
	TrackJoin(eventID string, result models.EntryStatus)
	TrackOfferExpired(eventID string)
	TrackPurchase(eventID string, target models.SaleKind, units int, offerHeld time.Duration)
	TrackRejection(eventID, operation string, kind status.Kind)
}

type nopMetrics struct{}

func (nopMetrics) TrackJoin(string, models.EntryStatus)                      {}
func (nopMetrics) TrackOfferExpired(string)                                  {}
func (nopMetrics) TrackPurchase(string, models.SaleKind, int, time.Duration) {}
func (nopMetrics) TrackRejection(string, string, status.Kind)                {}

// Engine is the reservation and allocation engine. Every operation runs as one
// serialized update of the event aggregate.
type Engine struct {
	store       store.Store
	clock       clock.Clock
	scheduler   ExpiryScheduler
	notifier    Notifier
	metrics     Metrics
	offerWindow time.Duration
	codeLength  int
}

type EngineOption func(*Engine)

func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithOfferWindow overrides how long an offer stays open.
func WithOfferWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.offerWindow = d
		}
	}
}

func WithScheduler(s ExpiryScheduler) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scheduler = s
		}
	}
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       st,
		clock:       clock.NewSystem(),
		scheduler:   nopScheduler{},
		notifier:    nopNotifier{},
		metrics:     nopMetrics{},
		offerWindow: defaultOfferWindow,
		codeLength:  ticketCodeLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) OfferWindow() time.Duration {
	return e.offerWindow
}

// effects collects what an update did so side effects run only after commit.
// It is reset at the start of every attempt because an update may be replayed.
type effects struct {
	offers    []models.WaitingListEntry
	expired   []models.WaitingListEntry
	cancelled []models.WaitingListEntry
	purchase  *models.Purchase
	tickets   []models.Ticket
	offerAge  time.Duration

	ignoredReferral string
}

func (fx *effects) reset() {
	*fx = effects{}
}

// apply runs the post-commit side effects. Failures here are logged only; the
// state change is already durable. A cancelled caller does not stop them.
func (e *Engine) apply(ctx context.Context, fx *effects) {
	ctx = context.WithoutCancel(ctx)
	for _, entry := range fx.offers {
		if err := e.scheduler.ScheduleExpiry(ctx, entry.ID, entry.EventID, *entry.OfferExpiresAt); err != nil {
			slog.Error("Failed to schedule offer expiry", "event_id", entry.EventID, "entry_id", entry.ID, "error", err)
		}
		slog.Info("Offer granted", "event_id", entry.EventID, "entry_id", entry.ID, "customer_id", entry.CustomerID, "expires_at", entry.OfferExpiresAt)
		e.notify(ctx, Notification{
			Type:           NotificationOfferGranted,
			EventID:        entry.EventID,
			CustomerID:     entry.CustomerID,
			EntryID:        entry.ID,
			OfferExpiresAt: entry.OfferExpiresAt,
		})
	}

	for _, entry := range fx.expired {
		e.metrics.TrackOfferExpired(entry.EventID)
		slog.Info("Offer expired", "event_id", entry.EventID, "entry_id", entry.ID, "customer_id", entry.CustomerID)
		e.notify(ctx, Notification{
			Type:       NotificationOfferExpired,
			EventID:    entry.EventID,
			CustomerID: entry.CustomerID,
			EntryID:    entry.ID,
		})
	}

	for _, entry := range fx.cancelled {
		e.notify(ctx, Notification{
			Type:       NotificationEventCancelled,
			EventID:    entry.EventID,
			CustomerID: entry.CustomerID,
			EntryID:    entry.ID,
		})
	}

	if p := fx.purchase; p != nil {
		e.metrics.TrackPurchase(p.EventID, p.Target.Kind, p.Units, fx.offerAge)
		slog.Info("Purchase completed", "event_id", p.EventID, "purchase_id", p.ID, "customer_id", p.CustomerID, "units", p.Units)
		if fx.ignoredReferral != "" {
			slog.Info("Referral code earns no commission", "event_id", p.EventID, "purchase_id", p.ID, "referral_code", fx.ignoredReferral)
		}
		e.notify(ctx, Notification{
			Type:        NotificationPurchaseCompleted,
			EventID:     p.EventID,
			CustomerID:  p.CustomerID,
			EntryID:     p.EntryID,
			PurchaseID:  p.ID,
			TicketCount: len(fx.tickets),
			Purchase:    p,
			Tickets:     fx.tickets,
		})
	}
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = e.clock.Now()
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		slog.Warn("Failed to deliver notification", "type", n.Type, "event_id", n.EventID, "error", err)
	}
}

func (e *Engine) reject(eventID, operation string, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		e.metrics.TrackRejection(eventID, operation, status.KindOf(err))
	}
	return err
}

// settle expires offers whose window has passed and then promotes waiting
// entries in FIFO order while the event has room.
func (e *Engine) settle(state *models.EventState, now time.Time, fx *effects) {
	for _, entry := range state.OfferedEntries() {
		if !entry.ActiveOffer(now) {
			expireEntry(entry, now)
			fx.expired = append(fx.expired, *entry)
		}
	}
	e.processQueue(state, now, fx)
}

// EventIDs lists the events the store holds.
func (e *Engine) EventIDs(ctx context.Context) ([]string, error) {
	return e.store.EventIDs(ctx)
}
