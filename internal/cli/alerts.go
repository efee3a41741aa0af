package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"goldwatch/internal/app"
)

var (
	alertUser      string
	alertRule      string
	alertDirection string
	alertThreshold string

	alertsLimit  int
	alertsActive bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new price alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertThreshold == "" {
			return fmt.Errorf("--threshold is required")
		}
		return getApp().CreateAlert(cmd.Context(), app.AlertCreateOptions{
			UserID:    alertUser,
			RuleType:  alertRule,
			Direction: alertDirection,
			Threshold: alertThreshold,
		})
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ListAlerts(cmd.Context(), app.AlertListOptions{
			Limit:      alertsLimit,
			ActiveOnly: alertsActive,
		})
	},
}

func init() {
	alertsCreateCmd.Flags().StringVar(&alertUser, "user", "", "Owner user id (UUID)")
	alertsCreateCmd.Flags().StringVar(&alertRule, "rule", "price_above", "Rule type: price_above or price_below")
	alertsCreateCmd.Flags().StringVar(&alertDirection, "direction", "", "Watched direction: above or below (defaults to match the rule)")
	alertsCreateCmd.Flags().StringVar(&alertThreshold, "threshold", "", "Threshold price")

	alertsListCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to display")
	alertsListCmd.Flags().BoolVar(&alertsActive, "active", false, "Show only alerts that have not triggered")

	alertsCmd.AddCommand(alertsCreateCmd)
	alertsCmd.AddCommand(alertsListCmd)
}
