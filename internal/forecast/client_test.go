package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldwatch/internal/pricing"
)

func testHistory() []pricing.PricePoint {
	return []pricing.PricePoint{
		{Date: time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromInt(2340)},
		{Date: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), Price: decimal.NewFromInt(2350)},
	}
}

func TestClientForecastSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		var req forecastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Rows) != 2 || req.HorizonDays != 7 {
			t.Fatalf("unexpected request payload: %+v", req)
		}
		if req.Rows[0].DS != "2024-05-30" {
			t.Fatalf("rows should carry ISO dates, got %q", req.Rows[0].DS)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"forecast": []map[string]any{
				{"ds": "2024-06-01", "yhat": 2360.5, "yhat_lower": 2310.1, "yhat_upper": 2410.9},
			},
			"model_version":   "prophet-2.0",
			"training_window": 2,
		})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	res, err := c.Forecast(context.Background(), testHistory(), 7, ModeSingle)
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}

	if gotPath != "/forecast" {
		t.Fatalf("single mode should hit /forecast, got %s", gotPath)
	}
	if res.Degraded {
		t.Fatal("a remote result must not be labeled degraded")
	}
	if res.ModelVersion != "prophet-2.0" || res.TrainingWindowDays != 2 {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
	if res.Forecast[0].YhatLower != 2310.1 || res.Forecast[0].YhatUpper != 2410.9 {
		t.Fatalf("bounds should map from snake_case fields: %+v", res.Forecast[0])
	}
}

func TestClientEnsembleEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"forecast":      []map[string]any{{"ds": "2024-06-01", "yhat": 1.0}},
			"model_version": "ensemble-1.0",
		})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	if _, err := c.Forecast(context.Background(), testHistory(), 7, ModeEnsemble); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/forecast/enhanced" {
		t.Fatalf("ensemble mode should hit /forecast/enhanced, got %s", gotPath)
	}
}

func TestClientInsufficientData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"detail": "Insufficient valid data points after preprocessing (have 1, need 2)",
		})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := c.Forecast(context.Background(), testHistory(), 7, ModeSingle)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("400 with an insufficient-data detail should classify as ErrInsufficientData, got %v", err)
	}
}

func TestClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "model fitting failed"})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := c.Forecast(context.Background(), testHistory(), 7, ModeSingle)

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("500 should classify as UpstreamError, got %v", err)
	}
	if errors.Is(err, ErrInsufficientData) {
		t.Fatal("a 500 must not classify as insufficient data")
	}
	if upstream.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", upstream.Status)
	}
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := c.Forecast(context.Background(), testHistory(), 7, ModeSingle)

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("a transport failure should classify as UpstreamError, got %v", err)
	}
}
