// Package pricing supplies current gold spot prices from a chain of
// upstream sources.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time spot price observation.
type Snapshot struct {
	Price         decimal.Decimal
	AsOf          time.Time
	Source        string
	FallbackLevel int
}

// PricePoint is a daily close used as forecaster ground truth.
type PricePoint struct {
	Date  time.Time
	Price decimal.Decimal
}

// Source retrieves the current spot rate for the tracked asset.
type Source interface {
	Name() string
	GetSpotRate(ctx context.Context) (Snapshot, error)
}
