package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldwatch/internal/pricing"
	"goldwatch/internal/storage"
)

type fakeSpot struct {
	snapshot pricing.Snapshot
	err      error
	calls    int
}

func (f *fakeSpot) Name() string { return "fake" }

func (f *fakeSpot) GetSpotRate(ctx context.Context) (pricing.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return pricing.Snapshot{}, f.err
	}
	return f.snapshot, nil
}

type fakeAlertStore struct {
	alerts    []storage.Alert
	listCalls int

	markResults map[uuid.UUID][]int64
	markErrs    map[uuid.UUID]error
	marked      []uuid.UUID
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, alert storage.Alert) (storage.Alert, error) {
	return alert, nil
}

func (f *fakeAlertStore) ListActiveAlerts(ctx context.Context) ([]storage.Alert, error) {
	f.listCalls++
	return f.alerts, nil
}

func (f *fakeAlertStore) ListRecentAlerts(ctx context.Context, limit int) ([]storage.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAlertStore) TryMarkTriggered(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	if err, ok := f.markErrs[id]; ok {
		return 0, err
	}
	f.marked = append(f.marked, id)
	results := f.markResults[id]
	if len(results) == 0 {
		return 1, nil
	}
	r := results[0]
	f.markResults[id] = results[1:]
	return r, nil
}

func (f *fakeAlertStore) DeleteTriggeredBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

type fakeSampleStore struct {
	samples []storage.PriceSample
	err     error
}

func (f *fakeSampleStore) UpsertPriceSample(ctx context.Context, sample storage.PriceSample) error {
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeSampleStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]storage.PriceSample, error) {
	return f.samples, nil
}

func (f *fakeSampleStore) ListRecentSamples(ctx context.Context, limit int) ([]storage.PriceSample, error) {
	return f.samples, nil
}

func (f *fakeSampleStore) CountSamples(ctx context.Context) (int64, error) {
	return int64(len(f.samples)), nil
}

type fakeDispatcher struct {
	err       error
	delivered []uuid.UUID
}

func (f *fakeDispatcher) Deliver(ctx context.Context, alert storage.Alert, snapshot pricing.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, alert.ID)
	return nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateCache() { f.calls++ }

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newAlert(rule storage.RuleType, dir storage.Direction, threshold string) storage.Alert {
	return storage.Alert{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Asset:     "XAU",
		Currency:  "USD",
		RuleType:  rule,
		Direction: dir,
		Threshold: price(threshold),
	}
}

func newService(spot pricing.Source, alerts storage.AlertStore, samples storage.PriceSampleStore, dispatcher *fakeDispatcher, inv *fakeInvalidator) *Service {
	opts := Options{
		Spot:    spot,
		Alerts:  alerts,
		Samples: samples,
		Logger:  zerolog.Nop(),
	}
	if dispatcher != nil {
		opts.Dispatcher = dispatcher
	}
	if inv != nil {
		opts.Invalidator = inv
	}
	return New(opts)
}

func TestEvaluateRuleMatrix(t *testing.T) {
	cases := []struct {
		name      string
		rule      storage.RuleType
		direction storage.Direction
		threshold string
		price     string
		want      bool
	}{
		{"above matched strict equal", storage.RulePriceAbove, storage.DirectionAbove, "2250", "2250.00", false},
		{"above matched strict greater", storage.RulePriceAbove, storage.DirectionAbove, "2250", "2250.01", true},
		{"above mismatched inclusive equal", storage.RulePriceAbove, storage.DirectionBelow, "2250", "2250.00", true},
		{"above mismatched inclusive less", storage.RulePriceAbove, storage.DirectionBelow, "2250", "2249.99", false},
		{"below matched strict equal", storage.RulePriceBelow, storage.DirectionBelow, "2250", "2250.00", false},
		{"below matched strict less", storage.RulePriceBelow, storage.DirectionBelow, "2250", "2249.99", true},
		{"below mismatched inclusive equal", storage.RulePriceBelow, storage.DirectionAbove, "2250", "2250.00", true},
		{"below mismatched inclusive greater", storage.RulePriceBelow, storage.DirectionAbove, "2250", "2250.01", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := newAlert(tc.rule, tc.direction, tc.threshold)
			got, err := EvaluateRule(alert, price(tc.price))
			if err != nil {
				t.Fatalf("EvaluateRule returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("EvaluateRule = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateRuleUnknownType(t *testing.T) {
	alert := newAlert("price_sideways", storage.DirectionAbove, "2250")
	if _, err := EvaluateRule(alert, price("2300")); err == nil {
		t.Fatal("expected error for unknown rule type")
	}
}

func TestTriggerAtMostOnce(t *testing.T) {
	alert := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	store := &fakeAlertStore{
		alerts:      []storage.Alert{alert},
		markResults: map[uuid.UUID][]int64{alert.ID: {1, 0}},
	}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake"}}
	dispatcher := &fakeDispatcher{}
	svc := newService(spot, store, &fakeSampleStore{}, dispatcher, nil)

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.EvaluateTick(context.Background(), bucket); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	if err := svc.EvaluateTick(context.Background(), bucket.Add(time.Minute)); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	if len(dispatcher.delivered) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(dispatcher.delivered))
	}
}

func TestFailureIsolation(t *testing.T) {
	first := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	second := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	third := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	store := &fakeAlertStore{
		alerts:   []storage.Alert{first, second, third},
		markErrs: map[uuid.UUID]error{second.ID: errors.New("connection reset")},
	}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake"}}
	dispatcher := &fakeDispatcher{}
	svc := newService(spot, store, &fakeSampleStore{}, dispatcher, nil)

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.EvaluateTick(context.Background(), bucket); err != nil {
		t.Fatalf("tick returned error despite per-alert isolation: %v", err)
	}

	if len(dispatcher.delivered) != 2 {
		t.Fatalf("expected 2 deliveries around the failing alert, got %d", len(dispatcher.delivered))
	}
	for _, id := range dispatcher.delivered {
		if id == second.ID {
			t.Fatal("failing alert must not be delivered")
		}
	}
}

func TestTickSkippedWhenSpotUnavailable(t *testing.T) {
	alert := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	store := &fakeAlertStore{alerts: []storage.Alert{alert}}
	spot := &fakeSpot{err: errors.New("all sources down")}
	samples := &fakeSampleStore{}
	svc := newService(spot, store, samples, &fakeDispatcher{}, nil)

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.EvaluateTick(context.Background(), bucket); err != nil {
		t.Fatalf("skipped tick must not return an error: %v", err)
	}

	if store.listCalls != 0 {
		t.Fatal("alerts must not be evaluated when the spot price is unavailable")
	}
	if len(samples.samples) != 0 {
		t.Fatal("no sample should be persisted on a skipped tick")
	}
	if len(store.marked) != 0 {
		t.Fatal("no alert state must change on a skipped tick")
	}
}

func TestNotificationFailureKeepsTrigger(t *testing.T) {
	alert := newAlert(storage.RulePriceAbove, storage.DirectionAbove, "2250")
	store := &fakeAlertStore{alerts: []storage.Alert{alert}}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake"}}
	dispatcher := &fakeDispatcher{err: errors.New("telegram 502")}
	svc := newService(spot, store, &fakeSampleStore{}, dispatcher, nil)

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.EvaluateTick(context.Background(), bucket); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.marked) != 1 {
		t.Fatalf("trigger must stand despite delivery failure, marked=%d", len(store.marked))
	}
}

func TestSamplePersistedPerTick(t *testing.T) {
	store := &fakeAlertStore{}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake", FallbackLevel: 1}}
	samples := &fakeSampleStore{}
	svc := newService(spot, store, samples, nil, nil)

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.EvaluateTick(context.Background(), bucket); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(samples.samples) != 1 {
		t.Fatalf("expected one persisted sample, got %d", len(samples.samples))
	}
	got := samples.samples[0]
	if !got.Price.Equal(price("2300")) || got.FallbackLevel != 1 || !got.Bucket.Equal(bucket) {
		t.Fatalf("unexpected sample persisted: %+v", got)
	}
}

func TestCacheInvalidatedOnNewCloseDate(t *testing.T) {
	store := &fakeAlertStore{}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake"}}
	inv := &fakeInvalidator{}
	svc := newService(spot, store, &fakeSampleStore{}, nil, inv)

	day1 := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	if err := svc.EvaluateTick(context.Background(), day1); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if inv.calls != 0 {
		t.Fatalf("first observed date must not invalidate, calls=%d", inv.calls)
	}

	if err := svc.EvaluateTick(context.Background(), day1.Add(-time.Minute)); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if inv.calls != 0 {
		t.Fatalf("same date must not invalidate, calls=%d", inv.calls)
	}

	if err := svc.EvaluateTick(context.Background(), day2); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("date rollover must invalidate exactly once, calls=%d", inv.calls)
	}
}

type fakeLocker struct {
	acquired bool
	err      error
	calls    int
	released int
}

func (f *fakeLocker) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}

func TestProcessTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	store := &fakeAlertStore{}
	spot := &fakeSpot{snapshot: pricing.Snapshot{Price: price("2300"), Source: "fake"}}
	svc := newService(spot, store, &fakeSampleStore{}, nil, nil)
	locker := &fakeLocker{acquired: false}
	svc.locker = locker

	bucket := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.ProcessTick(context.Background(), bucket); err != nil {
		t.Fatalf("lock contention must not be an error: %v", err)
	}
	if spot.calls != 0 {
		t.Fatal("tick must not run without the advisory lock")
	}

	locker.acquired = true
	if err := svc.ProcessTick(context.Background(), bucket); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if spot.calls != 1 {
		t.Fatalf("tick should run once lock is acquired, spot calls=%d", spot.calls)
	}
	if locker.released != 1 {
		t.Fatalf("lock must be released after the tick, released=%d", locker.released)
	}
}
