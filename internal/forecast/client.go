package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/pricing"
)

const (
	forecastPath = "/forecast"
	ensemblePath = "/forecast/enhanced"
)

// ClientOptions parameterise the remote forecaster client.
type ClientOptions struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	HolidaysEnabled   bool
	WeeklySeasonality bool
	YearlySeasonality bool
}

// Client calls the forecasting service over HTTP.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	clock   func() time.Time
}

// NewClient constructs a forecaster client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "forecast_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		clock:   time.Now,
	}
}

// Forecast posts the price history and returns the remote model's output.
// The request timeout doubles as the slow-call bound; an expiry surfaces as
// an UpstreamError and counts against the breaker.
func (c *Client) Forecast(ctx context.Context, history []pricing.PricePoint, horizonDays int, mode Mode) (Result, error) {
	if c.baseURL == "" {
		return Result{}, &UpstreamError{Detail: "forecaster base url not configured"}
	}

	rows := make([]forecastRow, 0, len(history))
	for _, p := range history {
		rows = append(rows, forecastRow{
			DS:    p.Date.UTC().Format("2006-01-02"),
			Price: p.Price.InexactFloat64(),
		})
	}

	body, err := json.Marshal(forecastRequest{
		Rows:              rows,
		HorizonDays:       horizonDays,
		HolidaysEnabled:   c.opts.HolidaysEnabled,
		WeeklySeasonality: c.opts.WeeklySeasonality,
		YearlySeasonality: c.opts.YearlySeasonality,
	})
	if err != nil {
		return Result{}, err
	}

	endpoint := c.baseURL + forecastPath
	if mode == ModeEnsemble {
		endpoint = c.baseURL + ensemblePath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &UpstreamError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, classifyError(resp.StatusCode, payload)
	}

	var remote forecastResponse
	if err := json.Unmarshal(payload, &remote); err != nil {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Detail: "malformed forecast response", Err: err}
	}
	if len(remote.Forecast) == 0 {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Detail: "forecast response empty"}
	}

	points := make([]Point, 0, len(remote.Forecast))
	for _, p := range remote.Forecast {
		points = append(points, Point{
			DS:        p.DS,
			Yhat:      p.Yhat,
			YhatLower: p.YhatLower,
			YhatUpper: p.YhatUpper,
		})
	}

	return Result{
		GeneratedAt:        c.clock().UTC(),
		HorizonDays:        horizonDays,
		Forecast:           points,
		ModelVersion:       remote.ModelVersion,
		TrainingWindowDays: remote.TrainingWindow,
		Degraded:           false,
	}, nil
}

type forecastRow struct {
	DS    string  `json:"ds"`
	Price float64 `json:"price"`
}

type forecastRequest struct {
	Rows              []forecastRow `json:"rows"`
	HorizonDays       int           `json:"horizon_days"`
	HolidaysEnabled   bool          `json:"holidays_enabled"`
	WeeklySeasonality bool          `json:"weekly_seasonality"`
	YearlySeasonality bool          `json:"yearly_seasonality"`
}

type forecastResponse struct {
	Forecast []struct {
		DS        string  `json:"ds"`
		Yhat      float64 `json:"yhat"`
		YhatLower float64 `json:"yhat_lower"`
		YhatUpper float64 `json:"yhat_upper"`
	} `json:"forecast"`
	ModelVersion   string `json:"model_version"`
	TrainingWindow int    `json:"training_window"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// classifyError separates the service's application-level insufficient-data
// rejection from genuine upstream failures. Only the latter erode breaker
// health.
func classifyError(status int, payload []byte) error {
	var body detailResponse
	detail := ""
	if err := json.Unmarshal(payload, &body); err == nil {
		detail = body.Detail
	}
	if detail == "" && len(payload) > 0 {
		detail = strings.TrimSpace(string(payload))
	}

	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(detail), "insufficient") {
		return fmt.Errorf("%w: %s", ErrInsufficientData, detail)
	}
	return &UpstreamError{Status: status, Detail: detail}
}

var _ RemoteForecaster = (*Client)(nil)
