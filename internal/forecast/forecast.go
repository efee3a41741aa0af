// Package forecast proxies a remote forecasting service behind a TTL cache,
// a circuit breaker, and a deterministic degraded fallback.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldwatch/internal/pricing"
)

// Mode selects the remote model family.
type Mode string

const (
	ModeEnsemble Mode = "ensemble"
	ModeSingle   Mode = "single"
)

// Request parameterises a forecast lookup.
type Request struct {
	HorizonDays int
	ForceCold   bool
	Mode        Mode
}

func (r Request) validate() error {
	if r.HorizonDays < 1 || r.HorizonDays > 30 {
		return fmt.Errorf("forecast: horizon must be within [1,30], got %d", r.HorizonDays)
	}
	switch r.Mode {
	case ModeEnsemble, ModeSingle:
		return nil
	default:
		return fmt.Errorf("forecast: unknown mode %q", r.Mode)
	}
}

// Point is a single forecast step.
type Point struct {
	DS        string  `json:"ds"`
	Yhat      float64 `json:"yhat"`
	YhatLower float64 `json:"yhatLower"`
	YhatUpper float64 `json:"yhatUpper"`
}

// Result is a forecast payload, cached and degraded variants share the shape.
type Result struct {
	GeneratedAt        time.Time `json:"generatedAt"`
	HorizonDays        int       `json:"horizonDays"`
	Forecast           []Point   `json:"forecast"`
	ModelVersion       string    `json:"modelVersion"`
	TrainingWindowDays int       `json:"trainingWindowDays"`
	Degraded           bool      `json:"degraded"`
}

// ErrInsufficientData is the remote service's application-level rejection:
// too few price points to fit a model. It is not a breaker failure and is
// never masked by the fallback, since a fallback computed from too little
// data would mislead the caller.
var ErrInsufficientData = errors.New("forecast: insufficient price history")

// UpstreamError covers transport failures, timeouts, and non-2xx responses
// from the remote forecaster. These count against the circuit breaker.
type UpstreamError struct {
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("forecast upstream: %v", e.Err)
	case e.Detail != "":
		return fmt.Sprintf("forecast upstream (%d): %s", e.Status, e.Detail)
	default:
		return fmt.Sprintf("forecast upstream (%d)", e.Status)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PriceHistory supplies ground-truth daily closes. Closes are returned in
// ascending date order.
type PriceHistory interface {
	LatestClose(ctx context.Context) (pricing.PricePoint, error)
	RecentCloses(ctx context.Context, limit int) ([]pricing.PricePoint, error)
}

// RemoteForecaster invokes the external forecasting service.
type RemoteForecaster interface {
	Forecast(ctx context.Context, history []pricing.PricePoint, horizonDays int, mode Mode) (Result, error)
}

// CacheKey derives the cache key from the latest known price date rather
// than wall-clock time: a forecast computed for data ending on date D stays
// reusable until a later close arrives.
func CacheKey(lastKnownPriceDate time.Time, horizonDays int, mode Mode) string {
	return fmt.Sprintf("%s|%d|%s", lastKnownPriceDate.UTC().Format("2006-01-02"), horizonDays, mode)
}
