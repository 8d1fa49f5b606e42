package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rahul/veritas/internal/observability"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent      = 16
	DefaultCapacityRetryAfter = 60 * time.Second
)

// ErrRejected wraps every admission rejection.
var ErrRejected = errors.New("request rejected by admission control")

// Outcome is the admission decision for one request.
type Outcome string

const (
	Admitted         Outcome = "admitted"
	RejectedRate     Outcome = "rejected_rate"
	RejectedCapacity Outcome = "rejected_capacity"
)

// Decision is the result of Admit.
type Decision struct {
	Outcome    Outcome
	Quota      Quota
	RetryAfter time.Duration
}

func (d Decision) Admitted() bool { return d.Outcome == Admitted }

// Err is nil for admitted requests and wraps ErrRejected otherwise.
func (d Decision) Err() error {
	switch d.Outcome {
	case RejectedRate:
		return fmt.Errorf("%w: rate limit of %d reached, retry after %s", ErrRejected, d.Quota.Limit, RetrySeconds(d.RetryAfter))
	case RejectedCapacity:
		return fmt.Errorf("%w: at capacity, retry after %s", ErrRejected, RetrySeconds(d.RetryAfter))
	}
	return nil
}

// Release gives back the gate slot of an admitted request. It is safe to
// call more than once and on rejected decisions.
type Release func()

// Config sizes the gate.
type Config struct {
	MaxConcurrent      int64
	CapacityRetryAfter time.Duration
}

// Controller gates entry into the orchestration pipeline.
type Controller struct {
	limiter       Limiter
	gate          *semaphore.Weighted
	capacityRetry time.Duration
	now           func() time.Time

	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewController(limiter Limiter, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Controller {
	if limiter == nil {
		limiter = NoopLimiter{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.CapacityRetryAfter <= 0 {
		cfg.CapacityRetryAfter = DefaultCapacityRetryAfter
	}
	return &Controller{
		limiter:       limiter,
		gate:          semaphore.NewWeighted(cfg.MaxConcurrent),
		capacityRetry: cfg.CapacityRetryAfter,
		now:           time.Now,
		logger:        logger,
		metrics:       metrics,
	}
}

func noRelease() {}

// Admit takes a gate slot without waiting, then checks the client's rate
// limit. A request turned away for capacity does not count against its
// client. The returned Release must be called on every path.
func (c *Controller) Admit(ctx context.Context, key string) (Decision, Release) {
	if !c.gate.TryAcquire(1) {
		return c.decide(ctx, key, Decision{Outcome: RejectedCapacity, RetryAfter: c.capacityRetry}), noRelease
	}

	q, err := c.limiter.Allow(ctx, key)
	if err != nil {
		c.logger.Slog().WarnContext(ctx, "rate limiter failed, allowing request",
			slog.String("client", key),
			slog.String("error", err.Error()),
		)
		q.Allowed = true
	}

	if !q.Allowed {
		c.gate.Release(1)
		retry := q.ResetAt.Sub(c.now())
		if retry < time.Second {
			retry = time.Second
		}
		return c.decide(ctx, key, Decision{Outcome: RejectedRate, Quota: q, RetryAfter: retry}), noRelease
	}

	c.metrics.IncInflight()
	var once sync.Once
	release := func() {
		once.Do(func() {
			c.gate.Release(1)
			c.metrics.DecInflight()
		})
	}
	return c.decide(ctx, key, Decision{Outcome: Admitted, Quota: q}), release
}

func (c *Controller) decide(ctx context.Context, key string, d Decision) Decision {
	c.metrics.RecordAdmission(string(d.Outcome))
	if d.Outcome != Admitted {
		c.logger.LogAdmission(ctx, key, string(d.Outcome))
	}
	return d
}

// Close releases the limiter.
func (c *Controller) Close() error {
	return c.limiter.Close()
}

// RetrySeconds renders d as whole seconds, rounded up, at least one.
func RetrySeconds(d time.Duration) time.Duration {
	s := (d + time.Second - 1) / time.Second
	if s < 1 {
		s = 1
	}
	return s * time.Second
}
