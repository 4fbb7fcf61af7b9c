package services

import (
	"context"
	"log"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"ticket-engine/internal/clock"

	"github.com/redis/go-redis/v9"
)

const (
	expiryQueueKey      = "inventory:expiry:due"
	defaultPollInterval = time.Second
	defaultExpiryBatch  = 100
)

// RedisExpiryScheduler keeps due expiries in a sorted set scored by fire time
// and polls it. Several instances may poll the same set; ZREM decides which one
// runs a given check.
type RedisExpiryScheduler struct {
	Redis    *redis.Client
	clock    clock.Clock
	interval time.Duration
	batch    int64
	checker  ExpiryChecker
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewRedisExpiryScheduler(client *redis.Client, clk clock.Clock, interval time.Duration) *RedisExpiryScheduler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &RedisExpiryScheduler{
		Redis:    client,
		clock:    clk,
		interval: interval,
		batch:    defaultExpiryBatch,
		stopChan: make(chan struct{}),
	}
}

func (s *RedisExpiryScheduler) ScheduleExpiry(ctx context.Context, entryID, eventID string, fireAt time.Time) error {
	return s.Redis.ZAdd(ctx, expiryQueueKey, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: entryID,
	}).Err()
}

// Start launches the poller. It stops on Shutdown or when ctx is done.
func (s *RedisExpiryScheduler) Start(ctx context.Context, checker ExpiryChecker) {
	s.checker = checker

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Println("Offer expiry poller started")
		for {
			select {
			case <-ticker.C:
				if _, err := s.Poll(ctx); err != nil {
					slog.Error("Offer expiry poll failed", "error", err)
				}
			case <-ctx.Done():
				return
			case <-s.stopChan:
				log.Println("Offer expiry poller stopping")
				return
			}
		}
	}()
}

// Poll runs every check that is due and returns how many this instance claimed.
func (s *RedisExpiryScheduler) Poll(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.Redis.ZRangeByScore(ctx, expiryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: s.batch,
	}).Result()
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, entryID := range due {
		removed, err := s.Redis.ZRem(ctx, expiryQueueKey, entryID).Result()
		if err != nil {
			return claimed, err
		}
		if removed == 0 {
			continue
		}
		claimed++

		result, err := s.checker.CheckExpiry(ctx, entryID)
		switch {
		case err != nil:
			slog.Error("Offer expiry check failed, requeueing", "entry_id", entryID, "error", err)
			if err := s.ScheduleExpiry(ctx, entryID, "", now.Add(expiryRetryDelay)); err != nil {
				return claimed, err
			}
		case result.Outcome == ExpiryNotDue:
			if err := s.ScheduleExpiry(ctx, entryID, "", result.DueAt); err != nil {
				return claimed, err
			}
		}
	}
	return claimed, nil
}

func (s *RedisExpiryScheduler) Shutdown() {
	s.once.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
