package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/alerting"
	"goldwatch/internal/metrics"
	"goldwatch/internal/pricing"
	"goldwatch/internal/scheduler"
	"goldwatch/internal/storage"
)

// CacheInvalidator drops cached forecasts when new ground truth arrives.
type CacheInvalidator interface {
	InvalidateCache()
}

// Options wires the evaluator's dependencies.
type Options struct {
	Scheduler   *scheduler.Scheduler
	Spot        pricing.Source
	Alerts      storage.AlertStore
	Samples     storage.PriceSampleStore
	Dispatcher  alerting.Dispatcher
	Invalidator CacheInvalidator
	Locker      storage.AdvisoryLocker
	LockKey     int64
	Logger      zerolog.Logger
}

// Service runs the periodic alert evaluation loop: fetch the spot price,
// persist it, and evaluate every active alert against it.
type Service struct {
	sched       *scheduler.Scheduler
	spot        pricing.Source
	alerts      storage.AlertStore
	samples     storage.PriceSampleStore
	dispatcher  alerting.Dispatcher
	invalidator CacheInvalidator
	locker      storage.AdvisoryLocker
	lockKey     int64
	logger      zerolog.Logger
	clock       func() time.Time

	lastCloseDate string
}

// New constructs the evaluation service.
func New(opts Options) *Service {
	return &Service{
		sched:       opts.Scheduler,
		spot:        opts.Spot,
		alerts:      opts.Alerts,
		samples:     opts.Samples,
		dispatcher:  opts.Dispatcher,
		invalidator: opts.Invalidator,
		locker:      opts.Locker,
		lockKey:     opts.LockKey,
		logger:      opts.Logger.With().Str("component", "evaluator").Logger(),
		clock:       time.Now,
	}
}

// Run blocks until ctx is cancelled, evaluating alerts on each tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Msg("alert evaluator started")
	return s.sched.Run(ctx, s.ProcessTick)
}

// ProcessTick guards a tick with the advisory lock so that overlapping
// replicas never evaluate the same bucket twice.
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time) error {
	if s.locker != nil {
		unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			s.logger.Debug().Time("bucket", bucket).Msg("another instance holds the lock, skipping tick")
			return nil
		}
		defer unlock()
	}
	return s.EvaluateTick(ctx, bucket)
}

// EvaluateTick performs one full evaluation pass. A tick where the spot
// price cannot be obtained is skipped entirely: no alert state changes.
func (s *Service) EvaluateTick(ctx context.Context, bucket time.Time) error {
	metrics.TicksTotal.Inc()

	snapshot, err := s.spot.GetSpotRate(ctx)
	if err != nil {
		metrics.TicksSkipped.Inc()
		s.logger.Warn().Err(err).Time("bucket", bucket).Msg("spot price unavailable, skipping tick")
		return nil
	}

	if err := s.recordSample(ctx, bucket, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("persist price sample failed")
	}

	alerts, err := s.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}

	triggered := 0
	failed := 0
	for _, alert := range alerts {
		ok, err := s.evaluateAlert(ctx, alert, snapshot)
		if err != nil {
			failed++
			metrics.AlertEvalErrors.Inc()
			s.logger.Error().Err(err).
				Str("alert_id", alert.ID.String()).
				Msg("alert evaluation failed")
			continue
		}
		if ok {
			triggered++
		}
	}

	s.logger.Info().
		Time("bucket", bucket).
		Str("price", snapshot.Price.String()).
		Str("source", snapshot.Source).
		Int("fallback_level", snapshot.FallbackLevel).
		Int("alerts", len(alerts)).
		Int("triggered", triggered).
		Int("failed", failed).
		Msg("tick evaluated")
	return nil
}

func (s *Service) recordSample(ctx context.Context, bucket time.Time, snapshot pricing.Snapshot) error {
	if s.samples == nil {
		return nil
	}
	sample := storage.PriceSample{
		Bucket:        bucket,
		Price:         snapshot.Price,
		Source:        snapshot.Source,
		FallbackLevel: snapshot.FallbackLevel,
	}
	if err := s.samples.UpsertPriceSample(ctx, sample); err != nil {
		return err
	}

	// A sample landing on a new calendar day changes the latest close, which
	// every cached forecast is keyed on.
	closeDate := bucket.UTC().Format("2006-01-02")
	if closeDate != s.lastCloseDate {
		if s.lastCloseDate != "" && s.invalidator != nil {
			s.invalidator.InvalidateCache()
			s.logger.Info().Str("close_date", closeDate).Msg("new close date, forecast cache invalidated")
		}
		s.lastCloseDate = closeDate
	}
	return nil
}

// evaluateAlert returns true when the alert fired on this tick. The
// conditional update in TryMarkTriggered is what makes the trigger
// at-most-once: if another evaluator won the race, zero rows are affected
// and no notification is sent.
func (s *Service) evaluateAlert(ctx context.Context, alert storage.Alert, snapshot pricing.Snapshot) (bool, error) {
	match, err := EvaluateRule(alert, snapshot.Price)
	if err != nil {
		return false, err
	}
	if !match {
		return false, nil
	}

	affected, err := s.alerts.TryMarkTriggered(ctx, alert.ID, s.clock().UTC())
	if err != nil {
		return false, fmt.Errorf("mark triggered: %w", err)
	}
	if affected == 0 {
		// Already triggered elsewhere. Not an error and not a trigger.
		return false, nil
	}

	metrics.AlertsTriggered.Inc()
	s.logger.Info().
		Str("alert_id", alert.ID.String()).
		Str("rule", string(alert.RuleType)).
		Str("threshold", alert.Threshold.String()).
		Str("price", snapshot.Price.String()).
		Msg("alert triggered")

	if s.dispatcher != nil {
		if err := s.dispatcher.Deliver(ctx, alert, snapshot); err != nil {
			// The trigger stands even when delivery fails; the state flip is
			// the source of truth, notification is best effort.
			metrics.NotificationFailures.Inc()
			s.logger.Error().Err(err).
				Str("alert_id", alert.ID.String()).
				Msg("notification delivery failed")
		}
	}
	return true, nil
}
