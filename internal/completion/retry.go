package completion

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dayplan-ai/dayplan/internal/logging"
	"github.com/dayplan-ai/dayplan/pkg/types"
)

// Classification buckets an error for retry handling.
type Classification int

const (
	// ClassRetryable is a generic transient failure: exponential backoff.
	ClassRetryable Classification = iota
	// ClassNonRetryable fails fast without further attempts.
	ClassNonRetryable
	// ClassRateLimit backs off exponentially with an extra multiplier.
	ClassRateLimit
	// ClassTimeout re-probes after a short fixed wait instead of growing
	// exponentially.
	ClassTimeout
)

// Classifier maps an error to a retry classification. Matching on message
// substrings is fragile against wording changes from the service, so the
// classifier is an injection point: swap it for a structured error-code
// contract without touching the orchestrator.
type Classifier interface {
	Classify(err error) Classification
}

// KeywordClassifier classifies by case-insensitive substring match against
// fixed marker lists. Unmatched errors default to retryable: preferring to
// retry an unknown transient condition over failing a user-visible turn.
type KeywordClassifier struct{}

var nonRetryableMarkers = []string{
	"authentication",
	"invalid_api_key",
	"invalid api key",
	"invalid credentials",
	"unauthorized",
	"permission",
	"invalid_request",
	"invalid request",
	"model_not_found",
	"model not found",
}

var rateLimitMarkers = []string{
	"rate_limit",
	"rate limit",
	"429",
}

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

// Classify implements Classifier.
func (KeywordClassifier) Classify(err error) Classification {
	if err == nil {
		return ClassRetryable
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return ClassNonRetryable
		}
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return ClassRateLimit
		}
	}
	for _, marker := range timeoutMarkers {
		if strings.Contains(msg, marker) {
			return ClassTimeout
		}
	}
	return ClassRetryable
}

// IsRetryable reports whether the classifier would allow another attempt.
func (c KeywordClassifier) IsRetryable(err error) bool {
	return c.Classify(err) != ClassNonRetryable
}

// RetryConfig holds the backoff knobs.
type RetryConfig struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	ExponentialBase     float64
	RateLimitMultiplier float64
	TimeoutWait         time.Duration
}

// DefaultRetryConfig mirrors the service defaults: three attempts, 1s base,
// doubling, 60s cap, doubled again under rate limiting, 2s fixed wait after
// timeouts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		BaseDelay:           time.Second,
		MaxDelay:            60 * time.Second,
		ExponentialBase:     2.0,
		RateLimitMultiplier: 2.0,
		TimeoutWait:         2 * time.Second,
	}
}

// RetryPolicy wraps a completion call with classified retries. It is
// transparent to the return value: on success the wrapped call's result is
// returned exactly as produced.
type RetryPolicy struct {
	cfg        RetryConfig
	classifier Classifier
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// RetryOption customizes a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c Classifier) RetryOption {
	return func(p *RetryPolicy) { p.classifier = c }
}

// WithSleep replaces the blocking wait, so tests can record backoff
// durations against a fixed clock.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) { p.sleep = fn }
}

// WithRetryLogger replaces the policy logger.
func WithRetryLogger(l zerolog.Logger) RetryOption {
	return func(p *RetryPolicy) { p.log = l }
}

// NewRetryPolicy builds a policy from config.
func NewRetryPolicy(cfg RetryConfig, opts ...RetryOption) *RetryPolicy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	p := &RetryPolicy{
		cfg:        cfg,
		classifier: KeywordClassifier{},
		sleep:      sleepContext,
		log:        logging.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newBackOff builds the exponential engine for one call. Randomization is
// disabled: waits follow base*expBase^attempt capped at MaxDelay, so retry
// timing is reproducible under test.
func (p *RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BaseDelay
	b.Multiplier = p.cfg.ExponentialBase
	b.MaxInterval = p.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// nextWait consumes the backoff engine according to the error class.
func (p *RetryPolicy) nextWait(b backoff.BackOff, class Classification) time.Duration {
	if class == ClassTimeout {
		return p.cfg.TimeoutWait
	}
	d := b.NextBackOff()
	if d == backoff.Stop {
		d = p.cfg.MaxDelay
	}
	if class == ClassRateLimit {
		d = time.Duration(float64(d) * p.cfg.RateLimitMultiplier)
	}
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	return d
}

// Do invokes call with retries. Non-retryable classifications short-circuit
// after the first attempt; exhaustion wraps the last error as
// retries_exhausted. Context cancellation during a backoff wait aborts
// immediately with the context error.
func (p *RetryPolicy) Do(ctx context.Context, call func(context.Context) (*types.StructuredResult, error)) (*types.StructuredResult, error) {
	b := p.newBackOff()
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := p.classifier.Classify(err)
		if class == ClassNonRetryable {
			p.log.Error().Err(err).Msg("non-retryable completion error")
			return nil, &Error{Kind: KindNonRetryable, Err: err}
		}
		if attempt == p.cfg.MaxAttempts-1 {
			break
		}

		wait := p.nextWait(b, class)
		p.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("completion attempt failed, retrying")
		if serr := p.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
	}

	return nil, &Error{Kind: KindRetriesExhausted, Err: lastErr}
}
