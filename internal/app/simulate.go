package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"goldwatch/internal/pricing"
	"goldwatch/internal/service"
)

// SimulateTick runs one evaluation pass against a fixed spot price, without
// a scheduler or price persistence. It exercises the real alert store and
// notification channel, so matching alerts do trigger.
func (a *App) SimulateTick(ctx context.Context, price decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	dispatcher := a.newDispatcher()
	if dispatcher == nil {
		return errors.New("no notification channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot simulate")
	}
	defer closeStore()

	spot := &staticSource{price: price}
	svc := service.New(service.Options{
		Spot:       spot,
		Alerts:     store,
		Dispatcher: dispatcher,
		Logger:     a.Logger,
	})

	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.EvaluateTick(ctx, bucket)
}

type staticSource struct {
	price decimal.Decimal
}

func (s *staticSource) Name() string { return "simulated" }

func (s *staticSource) GetSpotRate(ctx context.Context) (pricing.Snapshot, error) {
	return pricing.Snapshot{
		Price:  s.price,
		AsOf:   time.Now().UTC(),
		Source: "simulated",
	}, nil
}

var _ pricing.Source = (*staticSource)(nil)
