package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/breaker"
	"goldwatch/internal/metrics"
	"goldwatch/internal/pricing"
)

// OrchestratorOptions tune cache and training behaviour.
type OrchestratorOptions struct {
	CacheTTL           time.Duration
	TrainingWindowDays int
}

func (o OrchestratorOptions) withDefaults() OrchestratorOptions {
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.TrainingWindowDays <= 0 {
		o.TrainingWindowDays = 365
	}
	return o
}

// Orchestrator composes cache → breaker → remote call, falling back to the
// degraded generator when the remote leg fails. Exactly one cache write per
// successful remote call; degraded results are never cached so a later
// request can try for a real forecast once the breaker recovers.
type Orchestrator struct {
	opts   OrchestratorOptions
	cache  *Cache
	brk    *breaker.Breaker
	remote RemoteForecaster
	prices PriceHistory
	logger zerolog.Logger
	clock  func() time.Time
}

// NewOrchestrator wires the forecast pipeline.
func NewOrchestrator(opts OrchestratorOptions, cache *Cache, brk *breaker.Breaker, remote RemoteForecaster, prices PriceHistory, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		opts:   opts.withDefaults(),
		cache:  cache,
		brk:    brk,
		remote: remote,
		prices: prices,
		logger: logger.With().Str("component", "forecast_orchestrator").Logger(),
		clock:  time.Now,
	}
}

// GetForecast returns a cached, fresh, or degraded forecast for the request.
// Cached payloads are returned unchanged, including their original
// generatedAt, so callers are not misled about freshness.
func (o *Orchestrator) GetForecast(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	latest, err := o.prices.LatestClose(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("latest close: %w", err)
	}

	key := CacheKey(latest.Date, req.HorizonDays, req.Mode)

	if !req.ForceCold {
		if cached, ok := o.cache.Get(key); ok {
			metrics.ForecastCacheHits.Inc()
			return cached, nil
		}
	}
	metrics.ForecastCacheMisses.Inc()

	if err := o.brk.Allow(); err != nil {
		o.logger.Warn().Str("key", key).Msg("breaker open, serving degraded forecast")
		return o.serveDegraded(ctx, req, latest), nil
	}

	history, err := o.prices.RecentCloses(ctx, o.opts.TrainingWindowDays)
	if err != nil {
		// Local store trouble, not upstream health: leave the breaker alone.
		o.logger.Error().Err(err).Msg("failed to load price history")
		return o.serveDegraded(ctx, req, latest), nil
	}

	res, err := o.remote.Forecast(ctx, history, req.HorizonDays, req.Mode)
	switch {
	case err == nil:
		o.brk.RecordSuccess()
		o.cache.Set(key, res, o.opts.CacheTTL)
		return res, nil
	case errors.Is(err, ErrInsufficientData):
		// The upstream answered; its health is proven even though the
		// request was rejected. Propagate instead of masking with a
		// fallback built from the same thin data.
		o.brk.RecordSuccess()
		return Result{}, err
	default:
		o.brk.RecordFailure()
		metrics.ForecastRemoteFailures.Inc()
		o.logger.Error().Err(err).Str("key", key).Msg("remote forecast failed, serving degraded")
		return degradedFromHistory(history, req, o.clock()), nil
	}
}

// InvalidateCache drops every cached forecast. Invoked when a new daily
// close lands.
func (o *Orchestrator) InvalidateCache() {
	o.cache.InvalidateAll()
}

func (o *Orchestrator) serveDegraded(ctx context.Context, req Request, latest pricing.PricePoint) Result {
	history, err := o.prices.RecentCloses(ctx, o.opts.TrainingWindowDays)
	if err != nil || len(history) == 0 {
		history = []pricing.PricePoint{latest}
	}
	return degradedFromHistory(history, req, o.clock())
}

func degradedFromHistory(history []pricing.PricePoint, req Request, now time.Time) Result {
	metrics.ForecastDegraded.Inc()
	return GenerateDegraded(history, req.HorizonDays, now)
}
