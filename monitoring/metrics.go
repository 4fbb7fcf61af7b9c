package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_pool_available_units",
			Help: "Units still available per pool",
		},
		[]string{"event_id", "pool_id"},
	)

	activeOffers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waiting_list_active_offers",
			Help: "Offers currently held per event",
		},
		[]string{"event_id"},
	)

	joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiting_list_joins_total",
			Help: "Waiting list joins by resulting entry status",
		},
		[]string{"event_id", "result"},
	)

	offersExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waiting_list_offers_expired_total",
			Help: "Offers that lapsed without a purchase",
		},
		[]string{"event_id"},
	)

	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Completed purchases by sale target kind",
		},
		[]string{"event_id", "target"},
	)

	unitsSold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "units_sold_total",
			Help: "Ticket units sold",
		},
		[]string{"event_id"},
	)

	rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Rejected engine operations by error kind",
		},
		[]string{"event_id", "operation", "kind"},
	)

	offerToPurchase = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offer_to_purchase_seconds",
			Help:    "Time between an offer being granted and its purchase",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		},
		[]string{"event_id"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// InventorySource is what the monitor samples. services.Engine implements it.
type InventorySource interface {
	EventIDs(ctx context.Context) ([]string, error)
	PoolAvailability(ctx context.Context, eventID string) ([]models.Availability, error)
}

type Monitor struct {
	source   InventorySource
	interval time.Duration
}

func NewMonitor(source InventorySource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{source: source, interval: interval}
}

// Observe sets the source sampled by Collect.
func (m *Monitor) Observe(source InventorySource) {
	m.source = source
}

// Start samples the gauges every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Collect(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) Collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))
	if m.source == nil {
		return
	}

	eventIDs, err := m.source.EventIDs(ctx)
	if err != nil {
		slog.Warn("Failed to list events for metrics", "error", err)
		return
	}
	for _, eventID := range eventIDs {
		pools, err := m.source.PoolAvailability(ctx, eventID)
		if err != nil {
			slog.Warn("Failed to sample availability", "event_id", eventID, "error", err)
			continue
		}
		for _, p := range pools {
			poolAvailable.WithLabelValues(eventID, string(p.PoolID)).Set(float64(p.Available))
			if p.PoolID.Kind() == models.PoolKindEvent {
				activeOffers.WithLabelValues(eventID).Set(float64(p.ActiveOffers))
			}
		}
	}
}

func (m *Monitor) TrackJoin(eventID string, result models.EntryStatus) {
	joins.WithLabelValues(eventID, string(result)).Inc()
}

func (m *Monitor) TrackOfferExpired(eventID string) {
	offersExpired.WithLabelValues(eventID).Inc()
}

func (m *Monitor) TrackPurchase(eventID string, target models.SaleKind, units int, offerHeld time.Duration) {
	purchases.WithLabelValues(eventID, string(target)).Inc()
	unitsSold.WithLabelValues(eventID).Add(float64(units))
	if offerHeld > 0 {
		offerToPurchase.WithLabelValues(eventID).Observe(offerHeld.Seconds())
	}
}

func (m *Monitor) TrackRejection(eventID, operation string, kind status.Kind) {
	rejections.WithLabelValues(eventID, operation, string(kind)).Inc()
}
