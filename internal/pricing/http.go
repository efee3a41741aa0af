package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HTTPOptions parameterise a JSON spot price API.
type HTTPOptions struct {
	Name      string
	BaseURL   string
	APIKey    string
	Asset     string
	Currency  string
	Timeout   time.Duration
	UserAgent string
}

// HTTPSource fetches spot prices from a REST gold price API.
type HTTPSource struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTPSource constructs an HTTP spot price source.
func NewHTTPSource(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Asset == "" {
		opts.Asset = "XAU"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}

	return &HTTPSource{
		opts:   opts,
		logger: logger.With().Str("component", "spot_http").Str("source", opts.Name).Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the source within the fallback chain.
func (s *HTTPSource) Name() string {
	return s.opts.Name
}

// GetSpotRate retrieves the current spot price.
func (s *HTTPSource) GetSpotRate(ctx context.Context) (Snapshot, error) {
	if s.opts.BaseURL == "" {
		return Snapshot{}, errors.New("spot source base url not configured")
	}

	endpoint := fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(s.opts.BaseURL, "/"), s.opts.Asset, s.opts.Currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("x-access-token", s.opts.APIKey)
	}
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, parseSpotError(s.opts.Name, resp.StatusCode, payload)
	}

	var body spotResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return Snapshot{}, fmt.Errorf("decode spot response: %w", err)
	}
	if body.Price == "" {
		return Snapshot{}, errors.New("spot response missing price")
	}

	price, err := decimal.NewFromString(body.Price.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse spot price: %w", err)
	}
	if price.Sign() <= 0 {
		return Snapshot{}, fmt.Errorf("spot price out of range: %s", price)
	}

	asOf := time.Now().UTC()
	if body.Timestamp > 0 {
		asOf = time.Unix(body.Timestamp, 0).UTC()
	}

	return Snapshot{Price: price, AsOf: asOf, Source: s.opts.Name}, nil
}

type spotResponse struct {
	Price     json.Number `json:"price"`
	Currency  string      `json:"currency"`
	Timestamp int64       `json:"timestamp"`
}

type spotErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseSpotError(source string, status int, payload []byte) error {
	var apiErr spotErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", source, status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", source, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", source, status)
}

var _ Source = (*HTTPSource)(nil)
