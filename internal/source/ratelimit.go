package source

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// LimitConfig holds the call budgets for one source.
type LimitConfig struct {
	PerSecond   float64
	PerMinute   float64
	WaitTimeout time.Duration
}

// Limited wraps an Adapter with token-bucket rate limiting, a per-source
// failure breaker, and transient-error retries. A call that cannot acquire a
// token within WaitTimeout fails fast with ErrRateLimited instead of queuing
// indefinitely.
type Limited struct {
	adapter Adapter
	secBkt  *rate.Limiter
	minBkt  *rate.Limiter
	wait    time.Duration
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewLimited wraps adapter with the given call budgets.
func NewLimited(adapter Adapter, cfg LimitConfig) *Limited {
	perSec := cfg.PerSecond
	if perSec <= 0 {
		perSec = 1
	}
	perMin := cfg.PerMinute
	if perMin <= 0 {
		perMin = 60
	}
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = 2 * time.Second
	}

	secBurst := int(perSec)
	if secBurst < 1 {
		secBurst = 1
	}

	return &Limited{
		adapter: adapter,
		secBkt:  rate.NewLimiter(rate.Limit(perSec), secBurst),
		minBkt:  rate.NewLimiter(rate.Limit(perMin/60.0), int(perMin)),
		wait:    wait,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Name returns the wrapped adapter's name.
func (l *Limited) Name() string { return l.adapter.Name() }

// Capabilities returns the wrapped adapter's capability set.
func (l *Limited) Capabilities() []Capability { return l.adapter.Capabilities() }

// CostPerCall returns the wrapped adapter's advertised cost.
func (l *Limited) CostPerCall(op Capability) float64 { return l.adapter.CostPerCall(op) }

// Available reports whether a call would currently be admitted without
// waiting: both buckets hold a token and the breaker is not open.
func (l *Limited) Available() bool {
	if l.breaker.State() == resilience.BreakerOpen {
		return false
	}
	return l.secBkt.Tokens() >= 1 && l.minBkt.Tokens() >= 1
}

// acquire blocks up to the wait timeout for both buckets, then fails fast.
func (l *Limited) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := l.secBkt.Wait(waitCtx); err != nil {
		return rateLimitErr(ctx)
	}
	if err := l.minBkt.Wait(waitCtx); err != nil {
		return rateLimitErr(ctx)
	}
	return nil
}

// rateLimitErr maps a wait-timeout to the rate-limited condition while
// letting caller cancellation propagate as-is.
func rateLimitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrRateLimited
}

// retryFor returns the retry policy for one operation, logging each retry
// attempt under the source and operation names.
func (l *Limited) retryFor(op Capability) resilience.RetryConfig {
	cfg := l.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(l.adapter.Name(), string(op))
	}
	return cfg
}

// Search runs a rate-limited, breaker-guarded search.
func (l *Limited) Search(ctx context.Context, q SearchQuery) ([]model.Company, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}

	var out []model.Company
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := resilience.DoVal(ctx, l.retryFor(CapSearch), func(ctx context.Context) ([]model.Company, error) {
			return l.adapter.Search(ctx, q)
		})
		out = res
		return err
	})
	return out, mapBreakerErr(err)
}

// Enrich runs a rate-limited, breaker-guarded enrichment.
func (l *Limited) Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}

	var out *model.Company
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := resilience.DoVal(ctx, l.retryFor(CapEnrich), func(ctx context.Context) (*model.Company, error) {
			return l.adapter.Enrich(ctx, hints)
		})
		out = res
		return err
	})
	return out, mapBreakerErr(err)
}

// SearchPeople runs a rate-limited, breaker-guarded people search.
func (l *Limited) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}

	var out []model.Contact
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := resilience.DoVal(ctx, l.retryFor(CapPeopleSearch), func(ctx context.Context) ([]model.Contact, error) {
			return l.adapter.SearchPeople(ctx, q)
		})
		out = res
		return err
	})
	return out, mapBreakerErr(err)
}

// FindEmail runs a rate-limited, breaker-guarded email lookup.
func (l *Limited) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}

	var out *model.Contact
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := resilience.DoVal(ctx, l.retryFor(CapEmailFind), func(ctx context.Context) (*model.Contact, error) {
			return l.adapter.FindEmail(ctx, q)
		})
		out = res
		return err
	})
	return out, mapBreakerErr(err)
}

// mapBreakerErr folds an open breaker into the rate-limited condition so the
// orchestrator has a single "unavailable, try the next source" signal.
func mapBreakerErr(err error) error {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return ErrRateLimited
	}
	return err
}

var _ Adapter = (*Limited)(nil)
