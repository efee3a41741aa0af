package cli

import (
	"github.com/spf13/cobra"

	"goldwatch/internal/app"
)

var (
	forecastHorizon   int
	forecastMode      string
	forecastForceCold bool
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Request a price forecast and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Forecast(cmd.Context(), app.ForecastOptions{
			HorizonDays: forecastHorizon,
			Mode:        forecastMode,
			ForceCold:   forecastForceCold,
		})
	},
}

func init() {
	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 7, "Forecast horizon in days (1-30)")
	forecastCmd.Flags().StringVar(&forecastMode, "mode", "ensemble", "Model family: ensemble or single")
	forecastCmd.Flags().BoolVar(&forecastForceCold, "force-cold", false, "Bypass the forecast cache")
}
