package inference

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Breaker wraps an Answerer with a minimal per-error-class circuit breaker.
// While open, questions fail immediately instead of waiting on a dead endpoint.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	next   Answerer
	now    func() time.Time
	logger *zap.Logger

	mu          sync.Mutex
	state       CircuitState
	failures    map[string]int
	openedAt    time.Time
	openedClass string
}

// NewBreaker wraps next. Non-positive threshold or cooldown fall back to 5 and 30s.
func NewBreaker(next Answerer, threshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		next:      next,
		now:       time.Now,
		logger:    logger.Named("breaker"),
		state:     CircuitClosed,
		failures:  map[string]int{},
	}
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) OpenedClass() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedClass
}

// Answer forwards to the wrapped Answerer unless the circuit is open.
func (b *Breaker) Answer(ctx context.Context, req Request) (Response, error) {
	if !b.allow(b.now()) {
		return Response{}, &AnswerError{Class: ClassOpen, Message: "endpoint unavailable, try again later"}
	}
	resp, err := b.next.Answer(ctx, req)
	if err != nil {
		b.recordFailure(ClassOf(err), b.now())
		return resp, err
	}
	b.recordSuccess()
	return resp, nil
}

// allow returns whether new work is allowed at this instant.
func (b *Breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitOpen {
		return true
	}
	if now.Sub(b.openedAt) >= b.Cooldown {
		b.state = CircuitHalfOpen
		b.logger.Info("circuit half open", zap.String("error_class", b.openedClass))
		return true
	}
	return false
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitClosed {
		b.logger.Info("circuit closed")
	}
	b.state = CircuitClosed
	b.openedClass = ""
	b.failures = map[string]int{}
}

func (b *Breaker) recordFailure(errClass string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.open(errClass, now)
		return
	}
	b.failures[errClass]++
	if b.failures[errClass] >= b.Threshold {
		b.open(errClass, now)
	}
}

func (b *Breaker) open(errClass string, now time.Time) {
	b.state = CircuitOpen
	b.openedAt = now
	b.openedClass = errClass
	b.logger.Warn("circuit opened",
		zap.String("error_class", errClass),
		zap.Int("threshold", b.Threshold),
		zap.Duration("cooldown", b.Cooldown),
	)
}
