package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"goldwatch/internal/metrics"
)

// ErrAllSourcesFailed means every source in the chain failed; the caller
// skips whatever work depended on a fresh price.
var ErrAllSourcesFailed = errors.New("pricing: all spot sources failed")

// Chain tries each source in order and returns the first success, stamping
// the snapshot with the depth at which it was obtained.
type Chain struct {
	sources []Source
	logger  zerolog.Logger
}

// NewChain builds a fallback chain over the given sources.
func NewChain(logger zerolog.Logger, sources ...Source) *Chain {
	return &Chain{
		sources: sources,
		logger:  logger.With().Str("component", "spot_chain").Logger(),
	}
}

// Name identifies the chain as a whole.
func (c *Chain) Name() string {
	return "chain"
}

// GetSpotRate walks the chain until a source answers.
func (c *Chain) GetSpotRate(ctx context.Context) (Snapshot, error) {
	if len(c.sources) == 0 {
		return Snapshot{}, errors.New("pricing: no spot sources configured")
	}

	var lastErr error
	for level, src := range c.sources {
		snap, err := src.GetSpotRate(ctx)
		if err != nil {
			lastErr = err
			metrics.SpotSourceErrors.WithLabelValues(src.Name()).Inc()
			c.logger.Warn().Err(err).
				Str("source", src.Name()).
				Int("level", level).
				Msg("spot source failed, trying next")
			continue
		}

		snap.FallbackLevel = level
		if snap.Source == "" {
			snap.Source = src.Name()
		}
		metrics.SpotFallbackLevel.Set(float64(level))
		if level > 0 {
			c.logger.Info().
				Str("source", snap.Source).
				Int("level", level).
				Msg("spot price obtained via fallback source")
		}
		return snap, nil
	}

	return Snapshot{}, fmt.Errorf("%w: %v", ErrAllSourcesFailed, lastErr)
}

var _ Source = (*Chain)(nil)
