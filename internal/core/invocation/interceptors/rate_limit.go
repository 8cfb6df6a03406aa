package interceptors

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// DefaultMaxPrincipals bounds how many principals get a limiter of their own.
const DefaultMaxPrincipals = 1024

// RateLimit bounds the call rate per security principal. Calls without a
// principal share one anonymous budget, and so do principals seen once the
// table of limiters is full.
type RateLimit struct {
	logger        log.Log
	clock         clock.Clock
	limit         rate.Limit
	burst         int
	maxPrincipals int

	mu       sync.Mutex
	callers  map[string]*rate.Limiter
	overflow *rate.Limiter
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithRateLimitClock sets the time source of the limiters.
func WithRateLimitClock(c clock.Clock) RateLimitOption {
	return func(i *RateLimit) { i.clock = c }
}

// WithMaxPrincipals caps the number of per-principal limiters.
func WithMaxPrincipals(n int) RateLimitOption {
	return func(i *RateLimit) {
		if n > 0 {
			i.maxPrincipals = n
		}
	}
}

// NewRateLimit allows perSecond calls per principal with the given burst.
func NewRateLimit(logger log.Log, perSecond float64, burst int, opts ...RateLimitOption) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	i := &RateLimit{
		logger:        logger,
		clock:         clock.WallClock,
		limit:         rate.Limit(perSecond),
		burst:         burst,
		maxPrincipals: DefaultMaxPrincipals,
		callers:       make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.overflow = rate.NewLimiter(i.limit, i.burst)
	return i
}

// Name returns the interceptor name
func (i *RateLimit) Name() string {
	return "rate_limit"
}

// Priority returns the interceptor priority
func (i *RateLimit) Priority() int {
	return 800 // After principal check
}

func (i *RateLimit) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	principal, _ := msg.QoSContext()[invocation.QoSSecurityPrincipal].(string)
	now := i.clock.Now()
	if i.limiter(principal, now).AllowN(now, 1) {
		return next.Invoke(ctx, msg)
	}

	i.logger.Warn("Rate limit exceeded",
		log.String("principal", principal),
		log.String("operation", operationName(msg)),
		log.Float64("limit", float64(i.limit)),
		log.Int("burst", i.burst),
	)
	msg.SetFaultBody(invocation.NewError(invocation.ErrorCodeRateLimited, "rate limit exceeded", invocation.ErrRateLimited).
		WithContext("principal", principal))
	return msg
}

// Len returns the number of per-principal limiters held.
func (i *RateLimit) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.callers)
}

// limiter gets or creates the limiter of a principal. A full table is swept
// of limiters that refilled completely before the overflow limiter is used.
func (i *RateLimit) limiter(principal string, now time.Time) *rate.Limiter {
	if principal == "" {
		return i.overflow
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if l, ok := i.callers[principal]; ok {
		return l
	}
	if len(i.callers) >= i.maxPrincipals {
		i.sweepLocked(now)
	}
	if len(i.callers) >= i.maxPrincipals {
		return i.overflow
	}
	l := rate.NewLimiter(i.limit, i.burst)
	i.callers[principal] = l
	return l
}

// sweepLocked drops idle limiters. A limiter with a full bucket carries no
// state, so a new one behaves the same.
func (i *RateLimit) sweepLocked(now time.Time) {
	for principal, l := range i.callers {
		if l.TokensAt(now) >= float64(i.burst) {
			delete(i.callers, principal)
		}
	}
}
