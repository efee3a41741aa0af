package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/alerting"
	"goldwatch/internal/breaker"
	"goldwatch/internal/config"
	"goldwatch/internal/forecast"
	"goldwatch/internal/metrics"
	"goldwatch/internal/pricing"
	"goldwatch/internal/scheduler"
	"goldwatch/internal/service"
	"goldwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newSpotChain builds the spot price fallback chain: primary REST API,
// optional secondary REST API, optional Chainlink feed as last resort.
func (a *App) newSpotChain() pricing.Source {
	spot := a.Config.Spot
	sources := []pricing.Source{
		pricing.NewHTTPSource(pricing.HTTPOptions{
			Name:      spot.Primary.Name,
			BaseURL:   spot.Primary.BaseURL,
			APIKey:    spot.Primary.APIKey,
			Asset:     spot.Asset,
			Currency:  spot.Currency,
			Timeout:   spot.Primary.Timeout,
			UserAgent: spot.UserAgent,
		}, a.Logger),
	}

	if spot.Secondary.BaseURL != "" {
		sources = append(sources, pricing.NewHTTPSource(pricing.HTTPOptions{
			Name:      spot.Secondary.Name,
			BaseURL:   spot.Secondary.BaseURL,
			APIKey:    spot.Secondary.APIKey,
			Asset:     spot.Asset,
			Currency:  spot.Currency,
			Timeout:   spot.Secondary.Timeout,
			UserAgent: spot.UserAgent,
		}, a.Logger))
	}

	if spot.Chainlink.Enabled {
		sources = append(sources, pricing.NewChainlink(pricing.ChainlinkOptions{
			RPCURL:      spot.Chainlink.RPCURL,
			FeedAddress: spot.Chainlink.FeedAddress,
			Decimals:    int32(spot.Chainlink.Decimals),
			Timeout:     spot.Chainlink.Timeout,
		}, a.Logger))
	}

	return pricing.NewChain(a.Logger, sources...)
}

// newForecaster wires the forecast pipeline against the given price history.
func (a *App) newForecaster(prices forecast.PriceHistory) *forecast.Orchestrator {
	fc := a.Config.Forecaster

	client := forecast.NewClient(forecast.ClientOptions{
		BaseURL:           fc.BaseURL,
		Timeout:           fc.RequestTimeout,
		UserAgent:         fc.UserAgent,
		HolidaysEnabled:   fc.HolidaysEnabled,
		WeeklySeasonality: fc.WeeklySeasonality,
		YearlySeasonality: fc.YearlySeasonality,
	}, a.Logger)

	brk := breaker.New("prophet", breaker.Config{
		FailureThreshold: fc.Breaker.FailureThreshold,
		ResetTimeout:     fc.Breaker.ResetTimeout,
	}, a.Logger)

	return forecast.NewOrchestrator(forecast.OrchestratorOptions{
		CacheTTL:           fc.CacheTTL,
		TrainingWindowDays: fc.TrainingWindowDays,
	}, forecast.NewCache(), brk, client, prices, a.Logger)
}

func (a *App) newDispatcher() alerting.Dispatcher {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramDispatcher(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running evaluation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required for the evaluation service")
	}
	defer closeStore()

	if a.Config.Metrics.Enabled {
		srv := metrics.NewServer(a.Config.Metrics.Listen, a.Logger)
		go func() {
			if err := srv.Start(); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server terminated")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn().Err(err).Msg("metrics server shutdown failed")
			}
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	orchestrator := a.newForecaster(store)

	svc := service.New(service.Options{
		Scheduler:   sched,
		Spot:        a.newSpotChain(),
		Alerts:      store,
		Samples:     store,
		Dispatcher:  a.newDispatcher(),
		Invalidator: orchestrator,
		Locker:      store,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
		Logger:      a.Logger,
	})

	a.Logger.Info().Msg("starting alert evaluation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert evaluation service stopped")
	return nil
}

// ForecastOptions configure a one-shot forecast request.
type ForecastOptions struct {
	HorizonDays int
	Mode        string
	ForceCold   bool
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// AlertCreateOptions configure a new alert.
type AlertCreateOptions struct {
	UserID    string
	RuleType  string
	Direction string
	Threshold string
}

// AlertListOptions configure the alerts listing.
type AlertListOptions struct {
	Limit      int
	ActiveOnly bool
}
