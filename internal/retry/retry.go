// Package retry re-runs failed pipeline attempts with capped exponential
// backoff. It knows nothing about HTTP; callers decide what is retryable.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rickgao/crypto-etl/internal/model"
)

// Policy configures attempts and backoff growth.
type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean one attempt.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Multiplier grows the backoff between attempts. Values <= 1 mean 2.
	Multiplier float64
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

// Transient reports whether err is worth retrying: upstream throttling or a
// failed upstream call not marked permanent. Bad payloads and database
// failures are not.
func Transient(err error) bool {
	if model.IsPermanent(err) {
		return false
	}
	return model.IsKind(err, model.KindRateLimit) || model.IsKind(err, model.KindExtraction)
}

// Retrier runs functions under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger
	jitter func(time.Duration) time.Duration
}

// New creates a Retrier.
func New(policy Policy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = 2
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	return &Retrier{
		policy: policy,
		logger: logger,
		jitter: halfJitter,
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, attempts
// run out, or ctx is done. It also gives up when the upstream asks for a
// longer wait than MaxBackoff; the next run picks it up instead. The last
// error from fn is returned unchanged.
func (r *Retrier) Do(ctx context.Context, retryable func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.policy.MaxAttempts || !retryable(err) {
			return err
		}
		if hint := model.RetryAfter(err); hint > r.policy.MaxBackoff {
			r.logger.Warn("upstream asked for a longer wait than max backoff, giving up",
				"attempt", attempt,
				"retry_after", hint,
				"max_backoff", r.policy.MaxBackoff,
				"error", err,
			)
			return err
		}

		wait := r.Delay(attempt, err)
		r.logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"backoff", wait,
			"error", err,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Delay returns the wait after the given failed attempt (1-based). An
// upstream Retry-After hint carried by err wins when it is longer. The result
// never exceeds MaxBackoff.
func (r *Retrier) Delay(attempt int, err error) time.Duration {
	backoff := float64(r.policy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= r.policy.Multiplier
		if backoff >= float64(r.policy.MaxBackoff) {
			break
		}
	}
	d := min(r.jitter(time.Duration(backoff)), r.policy.MaxBackoff)

	if hint := model.RetryAfter(err); hint > d {
		return min(hint, r.policy.MaxBackoff)
	}
	return d
}

// halfJitter spreads d over [d/2, 3d/2).
func halfJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}
