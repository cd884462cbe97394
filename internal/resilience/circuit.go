// Package resilience provides retry, breaker and error classification helpers
// for requests to the catalog service.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is where a Breaker stands.
type BreakerState int

const (
	// BreakerClosed lets every request through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets one trial request decide between closed and open.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without contacting the catalog while the breaker
// is open.
var ErrBreakerOpen = eris.New("catalog breaker is open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is how many fetches in a row must fail to open. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration
}

// Breaker stops a harvest from spending a full retry budget on every
// remaining page once the catalog has stopped answering. It counts whole
// fetches, each of which may already have retried.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Guard runs fn unless b is open.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if !b.admit() {
		var zero T
		return zero, ErrBreakerOpen
	}
	val, err := fn(ctx)
	b.settle(err)
	return val, err
}

// State reports the current state. An open breaker whose cooldown has passed
// reads as half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.cooled() {
		return BreakerHalfOpen
	}
	return b.state
}

// Failures is the current run of failed fetches.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return true
	}
	if !b.cooled() {
		return false
	}
	b.move(BreakerHalfOpen)
	return true
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A canceled run says nothing about the catalog.
	if err != nil && eris.Is(err, context.Canceled) {
		return
	}
	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.move(BreakerClosed)
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.move(BreakerOpen)
		}
	}
}

func (b *Breaker) move(to BreakerState) {
	zap.L().Info("catalog breaker state change",
		zap.String("component", "resilience"),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}
