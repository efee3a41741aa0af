package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"goldwatch/internal/storage"
)

// CreateAlert inserts a new price alert and prints its id.
func (a *App) CreateAlert(ctx context.Context, opts AlertCreateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot create alerts")
	}
	defer closeStore()

	userID, err := uuid.Parse(opts.UserID)
	if err != nil {
		return fmt.Errorf("invalid --user value: %w", err)
	}

	threshold, err := decimal.NewFromString(opts.Threshold)
	if err != nil {
		return fmt.Errorf("invalid --threshold value: %w", err)
	}
	if threshold.LessThanOrEqual(decimal.Zero) {
		return errors.New("--threshold must be greater than zero")
	}

	rule := storage.RuleType(opts.RuleType)
	switch rule {
	case storage.RulePriceAbove, storage.RulePriceBelow:
	default:
		return fmt.Errorf("invalid --rule value %q (price_above or price_below)", opts.RuleType)
	}

	direction := storage.Direction(opts.Direction)
	switch direction {
	case storage.DirectionAbove, storage.DirectionBelow:
	case "":
		// Direction defaults to the one matching the rule.
		if rule == storage.RulePriceAbove {
			direction = storage.DirectionAbove
		} else {
			direction = storage.DirectionBelow
		}
	default:
		return fmt.Errorf("invalid --direction value %q (above or below)", opts.Direction)
	}

	created, err := store.CreateAlert(ctx, storage.Alert{
		ID:        uuid.New(),
		UserID:    userID,
		Asset:     a.Config.Spot.Asset,
		Currency:  a.Config.Spot.Currency,
		RuleType:  rule,
		Direction: direction,
		Threshold: threshold,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "created alert %s (%s %s %s/%s)\n",
		created.ID, created.RuleType, created.Threshold, created.Asset, created.Currency)
	return nil
}

// ListAlerts prints recent or active alerts in a table.
func (a *App) ListAlerts(ctx context.Context, opts AlertListOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	defer closeStore()

	var alerts []storage.Alert
	if opts.ActiveOnly {
		alerts, err = store.ListActiveAlerts(ctx)
	} else {
		alerts, err = store.ListRecentAlerts(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tRule\tDirection\tThreshold\tCreated (UTC)\tTriggered (UTC)")

	for _, alert := range alerts {
		triggered := "-"
		if alert.TriggeredAt != nil {
			triggered = alert.TriggeredAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.ID,
			alert.RuleType,
			alert.Direction,
			alert.Threshold.StringFixed(2),
			alert.CreatedAt.UTC().Format(time.RFC3339),
			triggered,
		)
	}

	writer.Flush()
	return nil
}
