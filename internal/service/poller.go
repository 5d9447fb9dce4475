package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/logicaltax/backend/internal/lock"
	"github.com/logicaltax/backend/internal/metrics"
	"github.com/logicaltax/backend/pkg/payment"
	"github.com/rs/zerolog/log"
)

// PollerConfig controls the polling fallback.
type PollerConfig struct {
	// Interval between runs. Zero disables the schedule.
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// SubscriptionPoller refreshes records that have not been synced recently,
// so missed deliveries are eventually repaired.
type SubscriptionPoller struct {
	subs      SubscriptionStore
	provider  payment.Provider
	locker    lock.Locker
	metrics   *metrics.Metrics
	cfg       PollerConfig
	timeout   time.Duration
	now       func() time.Time
	scheduler gocron.Scheduler
}

func NewSubscriptionPoller(subs SubscriptionStore, provider payment.Provider, locker lock.Locker, m *metrics.Metrics, cfg PollerConfig, providerTimeout time.Duration) *SubscriptionPoller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if providerTimeout <= 0 {
		providerTimeout = 5 * time.Second
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &SubscriptionPoller{
		subs:     subs,
		provider: provider,
		locker:   locker,
		metrics:  m,
		cfg:      cfg,
		timeout:  providerTimeout,
		now:      time.Now,
	}
}

// Start schedules SyncStale every Interval. Runs never overlap.
func (p *SubscriptionPoller) Start(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		log.Info().Msg("subscription poller disabled")
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(p.cfg.Interval),
		gocron.NewTask(p.run, ctx),
		gocron.WithName("subscription-poller"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule subscription poller: %w", err)
	}

	p.scheduler = s
	s.Start()
	log.Info().Dur("interval", p.cfg.Interval).Dur("stale_after", p.cfg.StaleAfter).Msg("subscription poller started")
	return nil
}

// Stop waits for a running sync to finish and stops the schedule.
func (p *SubscriptionPoller) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

func (p *SubscriptionPoller) run(ctx context.Context) {
	n, err := p.SyncStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("subscription poller run failed")
		return
	}
	if n > 0 {
		log.Info().Int("refreshed", n).Msg("subscription poller run complete")
	}
}

// SyncStale refreshes one batch of stale records from the provider and
// returns how many were written. Per-record failures are logged and skipped.
func (p *SubscriptionPoller) SyncStale(ctx context.Context) (int, error) {
	stale, err := p.subs.ListStale(ctx, p.now().Add(-p.cfg.StaleAfter), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, rec := range stale {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		ok, err := p.refresh(ctx, rec)
		switch {
		case err != nil:
			p.metrics.PollerRefreshed(outcomeFailed)
			log.Warn().Err(err).Str("subscription_id", rec.ID).Msg("poller: refresh failed")
		case ok:
			written++
			p.metrics.PollerRefreshed("updated")
		default:
			p.metrics.PollerRefreshed("unchanged")
		}
	}
	return written, nil
}

// refresh writes the provider's state for rec. The row is marked synced even
// when nothing changed so it leaves the stale window.
func (p *SubscriptionPoller) refresh(ctx context.Context, rec *domain.Subscription) (bool, error) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	live, err := p.provider.RetrieveSubscription(pctx, rec.ID)
	cancel()
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			// Nothing to sync against; mark the row synced so it is not retried every run.
			_, uerr := p.update(ctx, rec.ID, rec.Fields())
			return false, errors.Join(err, uerr)
		}
		return false, err
	}

	fields := fieldsFromProvider(live)
	if _, err := p.update(ctx, rec.ID, fields); err != nil {
		return false, err
	}
	return !fields.Equal(rec.Fields()), nil
}

func (p *SubscriptionPoller) update(ctx context.Context, id string, fields domain.SubscriptionFields) (bool, error) {
	lctx, cancel := context.WithTimeout(ctx, p.timeout)
	release, err := p.locker.Acquire(lctx, id)
	cancel()
	if err != nil {
		return false, err
	}
	defer release()
	return p.subs.UpdateFields(ctx, id, fields)
}
