package cmd

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ticket-engine/config"
	"ticket-engine/internal/clock"
	"ticket-engine/internal/handlers"
	"ticket-engine/internal/queue"
	"ticket-engine/internal/records"
	"ticket-engine/internal/services"
	"ticket-engine/internal/status"
	"ticket-engine/internal/store"
	_ "ticket-engine/migrations"
	"ticket-engine/monitoring"
	"ticket-engine/security"
	"ticket-engine/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

type expiryRunner interface {
	services.ExpiryScheduler
	Start(ctx context.Context, checker services.ExpiryChecker)
	Shutdown()
}

func Start() error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve", "--http=0.0.0.0:"+cfg.Port)
	}
	app := pocketbase.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregate store and offer expiry
	var (
		redisClient *redis.Client
		st          store.Store
		scheduler   expiryRunner
	)
	switch cfg.StoreDriver {
	case config.StoreRedis:
		redisClient, err = utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		st = store.NewRedisStore(redisClient, store.WithMaxRetries(cfg.StoreMaxRetries))
		scheduler = services.NewRedisExpiryScheduler(redisClient, clock.NewSystem(), cfg.ExpiryPollInterval)
	default:
		st = store.NewMemoryStore()
		scheduler = services.NewTimerScheduler()
	}

	// Outbound notifications
	recordStore := records.NewStore(app)
	notifiers := services.MultiNotifier{recordStore}

	if cfg.PubNubEnabled() {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifiers = append(notifiers, services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig)))
	}

	var publisher *queue.Publisher
	if cfg.AMQPEnabled() {
		publisher = queue.NewPublisher(cfg.AMQPURL)
		notifiers = append(notifiers, publisher)
	}

	monitor := monitoring.NewMonitor(nil, cfg.MetricsInterval)

	engine := services.NewEngine(st,
		services.WithOfferWindow(cfg.OfferWindow),
		services.WithScheduler(scheduler),
		services.WithNotifier(notifiers),
		services.WithMetrics(monitor),
	)
	monitor.Observe(engine)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(engine)
	inventoryHandler := handlers.NewInventoryHandler(engine, recordStore)
	adminHandler := handlers.NewAdminHandler(engine)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		scheduler.Start(ctx, engine)
		go restoreOffers(ctx, engine)

		if cfg.EnableMetrics {
			monitor.Start(ctx)
		}
		if cfg.AMQPEnabled() {
			consumer := queue.NewConsumer(cfg.AMQPURL, cfg.PaymentConfirmedQueue, engine)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("Payment consumer stopped", "error", err)
				}
			}()
		}

		// Waiting list endpoints
		join := e.Router.POST("/api/v1/events/{eventId}/waiting-list", queueHandler.EnterQueue)
		if redisClient != nil {
			limiter := security.NewRateLimiter(redisClient, cfg.JoinRateLimit, cfg.JoinRateWindow)
			join.BindFunc(limiter.AntiBotMiddleware(), limiter.JoinRateLimit())
		}
		e.Router.GET("/api/v1/waiting-list/{entryId}", queueHandler.GetQueuePosition)
		e.Router.DELETE("/api/v1/waiting-list/{entryId}", queueHandler.LeaveQueue)

		// Inventory and purchase endpoints
		e.Router.GET("/api/v1/events/{eventId}/availability", inventoryHandler.GetAvailability)
		e.Router.GET("/api/v1/events/{eventId}/pools/{poolId}/availability", inventoryHandler.GetPoolAvailability)
		e.Router.POST("/api/v1/events/{eventId}/quote", inventoryHandler.Quote)
		e.Router.POST("/api/v1/events/{eventId}/purchases", inventoryHandler.Purchase)
		e.Router.GET("/api/v1/customers/{customerId}/purchases", inventoryHandler.GetPurchaseHistory)
		e.Router.POST("/api/v1/events/{eventId}/tickets/{code}/check-in", inventoryHandler.CheckIn)

		// Admin endpoints
		admin := e.Router.Group("/api/v1/admin")
		if cfg.Environment != "development" {
			admin.Bind(apis.RequireSuperuserAuth())
		}
		admin.PUT("/events", adminHandler.RegisterEvent)
		admin.PATCH("/events/{eventId}/capacity", adminHandler.SetCapacity)
		admin.PATCH("/events/{eventId}/ticket-types/{ticketTypeId}/allocation", adminHandler.SetAllocation)
		admin.POST("/events/{eventId}/cancel", adminHandler.CancelEvent)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := st.Ping(e.Request.Context()); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy", "store": cfg.StoreDriver})
		})

		log.Println("Server routes registered")

		setupEventHooks(app, engine)

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		scheduler.Shutdown()
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				slog.Warn("Failed to close publisher", "error", err)
			}
		}
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// restoreOffers reschedules the expiry of every outstanding offer after a restart.
func restoreOffers(ctx context.Context, engine *services.Engine) {
	log.Println("Restoring offer expiries...")

	n, err := engine.RestoreOffers(ctx)
	if err != nil {
		log.Printf("Error restoring offers: %v", err)
		return
	}
	log.Printf("Offer restoration completed, %d offers rescheduled", n)
}

// setupEventHooks keeps the engine in step with edits to the events collection.
// Records share their id with the registered event.
func setupEventHooks(app *pocketbase.PocketBase, engine *services.Engine) {
	app.OnRecordUpdateRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		eventID := e.Record.Id
		original := e.Record.Original()

		if capacity := e.Record.GetInt("capacity"); capacity != original.GetInt("capacity") {
			if err := engine.SetEventCapacity(ctx, eventID, capacity); err != nil {
				if !errors.Is(err, status.ErrNotFound) {
					return apis.NewApiError(http.StatusConflict, "Capacity change rejected", err)
				}
				slog.Info("Event not registered, skipping capacity sync", "event_id", eventID)
			}
		}

		newStatus := e.Record.GetString("status")
		if newStatus == "cancelled" && original.GetString("status") != "cancelled" {
			if err := engine.CancelEvent(ctx, eventID); err != nil {
				if !errors.Is(err, status.ErrNotFound) {
					return apis.NewApiError(http.StatusConflict, "Cancellation rejected", err)
				}
				slog.Info("Event not registered, skipping cancellation", "event_id", eventID)
			}
		}

		return e.Next()
	})

	app.OnRecordDeleteRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		eventID := e.Record.Id

		if err := engine.CancelEvent(e.Request.Context(), eventID); err != nil && !errors.Is(err, status.ErrNotFound) {
			slog.Error("Refusing to delete event with sales", "event_id", eventID, "error", err)
			return apis.NewApiError(http.StatusConflict, "Event has sales and cannot be deleted", err)
		}
		slog.Info("Event deleted, waiting list closed", "event_id", eventID)
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
