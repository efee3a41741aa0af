package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleType tags the alert comparison rule.
type RuleType string

const (
	RulePriceAbove RuleType = "price_above"
	RulePriceBelow RuleType = "price_below"
)

// Direction tags the watched movement direction. Historically independent
// of RuleType; the evaluator applies a looser inclusive comparison when the
// two disagree.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Alert is a user price alert. TriggeredAt transitions exactly once from
// nil to a timestamp and is never reset; a non-nil TriggeredAt means the
// alert is permanently inactive.
type Alert struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Asset       string
	Currency    string
	RuleType    RuleType
	Direction   Direction
	Threshold   decimal.Decimal
	CreatedAt   time.Time
	TriggeredAt *time.Time
}

// Active reports whether the alert can still trigger.
func (a Alert) Active() bool {
	return a.TriggeredAt == nil
}

// PriceSample is a persisted spot price observation for one scheduler
// bucket.
type PriceSample struct {
	Bucket        time.Time
	Price         decimal.Decimal
	Source        string
	FallbackLevel int
	CreatedAt     time.Time
}
