package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"goldwatch/internal/metrics"
)

// ErrOpen is returned by Allow while the circuit is open.
var ErrOpen = errors.New("breaker: circuit open")

// State enumerates circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes breaker behaviour.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// Snapshot is the complete state-machine state. Transitions over snapshots
// are pure functions so they can be tested without any I/O or clock sleeps.
type Snapshot struct {
	Status              State
	ConsecutiveFailures int
	OpenedAt            time.Time
	Probing             bool
}

// allow decides whether a call may proceed and returns the updated state.
// While open, the breaker moves to half-open once the reset timeout has
// elapsed and admits exactly one probe; concurrent callers are rejected
// until the probe outcome is recorded.
func allow(s Snapshot, cfg Config, now time.Time) (Snapshot, bool) {
	switch s.Status {
	case StateClosed:
		return s, true
	case StateOpen:
		if now.Before(s.OpenedAt.Add(cfg.ResetTimeout)) {
			return s, false
		}
		s.Status = StateHalfOpen
		s.Probing = true
		return s, true
	case StateHalfOpen:
		if s.Probing {
			return s, false
		}
		s.Probing = true
		return s, true
	}
	return s, false
}

// onSuccess resets the breaker to closed. A successful half-open probe
// proves the upstream healthy again.
func onSuccess(s Snapshot) Snapshot {
	return Snapshot{Status: StateClosed}
}

// onFailure increments the failure count and opens the circuit when the
// threshold is reached. A failed half-open probe re-opens immediately.
func onFailure(s Snapshot, cfg Config, now time.Time) Snapshot {
	switch s.Status {
	case StateHalfOpen:
		return Snapshot{Status: StateOpen, OpenedAt: now}
	case StateOpen:
		return s
	default:
		s.ConsecutiveFailures++
		if s.ConsecutiveFailures >= cfg.FailureThreshold {
			return Snapshot{Status: StateOpen, OpenedAt: now}
		}
		return s
	}
}

// Breaker guards calls to a single upstream dependency. Each upstream gets
// its own instance; failure counts are never shared across services.
type Breaker struct {
	name   string
	cfg    Config
	logger zerolog.Logger
	clock  func() time.Time

	mu sync.Mutex
	s  Snapshot
}

// New constructs a closed breaker for the named upstream.
func New(name string, cfg Config, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "breaker").Str("upstream", name).Logger(),
		clock:  time.Now,
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Allow reports whether a call may proceed. It returns ErrOpen without
// contacting the upstream while the circuit is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, ok := allow(b.s, b.cfg, b.clock())
	b.apply(next)
	if !ok {
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return ErrOpen
	}
	return nil
}

// RecordSuccess resets failure tracking after a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apply(onSuccess(b.s))
}

// RecordFailure counts a failed call against the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apply(onFailure(b.s, b.cfg, b.clock()))
}

// Current returns a copy of the breaker state.
func (b *Breaker) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

// Name identifies the guarded upstream.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) apply(next Snapshot) {
	if next.Status != b.s.Status {
		b.logger.Warn().
			Str("from", b.s.Status.String()).
			Str("to", next.Status.String()).
			Int("consecutive_failures", b.s.ConsecutiveFailures).
			Msg("breaker state change")
		metrics.BreakerState.WithLabelValues(b.name).Set(float64(next.Status))
	}
	b.s = next
}
