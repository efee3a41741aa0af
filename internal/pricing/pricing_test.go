package pricing

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
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestHTTPSourceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/XAU/USD" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-access-token"); got != "secret" {
			t.Fatalf("api key header missing, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"price":     2350.25,
			"currency":  "USD",
			"timestamp": 1719417600,
		})
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{
		Name:    "goldapi",
		BaseURL: srv.URL,
		APIKey:  "secret",
		Timeout: time.Second,
	}, noopLogger())

	snap, err := src.GetSpotRate(context.Background())
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	if snap.Price.Cmp(decimal.RequireFromString("2350.25")) != 0 {
		t.Fatalf("expected price 2350.25, got %s", snap.Price)
	}
	if snap.Source != "goldapi" {
		t.Fatalf("expected source goldapi, got %s", snap.Source)
	}
	if snap.AsOf.Unix() != 1719417600 {
		t.Fatalf("expected asOf to follow response timestamp, got %v", snap.AsOf)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "quota exceeded"})
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{Name: "goldapi", BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := src.GetSpotRate(context.Background()); err == nil {
		t.Fatal("HTTP 429 should return an error")
	}
}

func TestHTTPSourceMissingConfig(t *testing.T) {
	src := NewHTTPSource(HTTPOptions{Name: "goldapi"}, noopLogger())
	if _, err := src.GetSpotRate(context.Background()); err == nil {
		t.Fatal("missing base url should return an error")
	}
}

func TestChainlinkMissingConfig(t *testing.T) {
	src := NewChainlink(ChainlinkOptions{}, noopLogger())
	if _, err := src.GetSpotRate(context.Background()); err == nil {
		t.Fatal("missing rpc url should return an error")
	}

	src = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := src.GetSpotRate(context.Background()); err == nil {
		t.Fatal("missing feed address should return an error")
	}
}

type staticSource struct {
	name string
	snap Snapshot
	err  error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) GetSpotRate(ctx context.Context) (Snapshot, error) {
	return s.snap, s.err
}

func TestChainFallbackLevel(t *testing.T) {
	primary := &staticSource{name: "primary", err: errors.New("boom")}
	secondary := &staticSource{
		name: "secondary",
		snap: Snapshot{Price: decimal.NewFromInt(2400), AsOf: time.Now().UTC(), Source: "secondary"},
	}

	chain := NewChain(noopLogger(), primary, secondary)
	snap, err := chain.GetSpotRate(context.Background())
	if err != nil {
		t.Fatalf("chain should fall back to the secondary source: %v", err)
	}
	if snap.FallbackLevel != 1 {
		t.Fatalf("expected fallback level 1, got %d", snap.FallbackLevel)
	}
	if snap.Source != "secondary" {
		t.Fatalf("expected source secondary, got %s", snap.Source)
	}
}

func TestChainPrimaryWins(t *testing.T) {
	primary := &staticSource{
		name: "primary",
		snap: Snapshot{Price: decimal.NewFromInt(2380), AsOf: time.Now().UTC(), Source: "primary"},
	}
	secondary := &staticSource{name: "secondary", err: errors.New("unreachable")}

	chain := NewChain(noopLogger(), primary, secondary)
	snap, err := chain.GetSpotRate(context.Background())
	if err != nil {
		t.Fatalf("primary source should succeed: %v", err)
	}
	if snap.FallbackLevel != 0 {
		t.Fatalf("expected fallback level 0, got %d", snap.FallbackLevel)
	}
}

func TestChainAllSourcesFailed(t *testing.T) {
	chain := NewChain(noopLogger(),
		&staticSource{name: "a", err: errors.New("down")},
		&staticSource{name: "b", err: errors.New("also down")},
	)

	if _, err := chain.GetSpotRate(context.Background()); !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
}
