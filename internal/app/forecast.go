package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"goldwatch/internal/forecast"
)

// Forecast runs a one-shot forecast against the configured pipeline and
// prints the result as JSON.
func (a *App) Forecast(ctx context.Context, opts ForecastOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot forecast")
	}
	defer closeStore()

	orchestrator := a.newForecaster(store)

	result, err := orchestrator.GetForecast(ctx, forecast.Request{
		HorizonDays: opts.HorizonDays,
		ForceCold:   opts.ForceCold,
		Mode:        forecast.Mode(opts.Mode),
	})
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			return fmt.Errorf("not enough price history to train a model: %w", err)
		}
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
